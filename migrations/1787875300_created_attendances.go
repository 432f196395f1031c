package migrations

import (
	"github.com/pocketbase/pocketbase/core"
	m "github.com/pocketbase/pocketbase/migrations"
)

func init() {
	m.Register(func(app core.App) error {
		events, err := app.FindCollectionByNameOrId("events")
		if err != nil {
			return err
		}
		users, err := app.FindCollectionByNameOrId("users")
		if err != nil {
			return err
		}

		collection := core.NewBaseCollection("attendances")

		collection.Fields.Add(
			&core.RelationField{Name: "event", Required: true, CollectionId: events.Id, MaxSelect: 1},
			&core.RelationField{Name: "user", Required: true, CollectionId: users.Id, MaxSelect: 1},
			&core.SelectField{Name: "status", Required: true, MaxSelect: 1, Values: []string{
				"confirmed",
				"waitlist",
				"cancelled",
			}},
			&core.DateField{Name: "joined_at", Required: true},
			&core.TextField{Name: "note"},
			&core.AutodateField{Name: "created", OnCreate: true},
			&core.AutodateField{Name: "updated", OnCreate: true, OnUpdate: true},
		)

		// One attendance row per (event, user) pair; cancellation is a soft
		// status on this same row, never a second one.
		collection.AddIndex("idx_attendances_event_user", true, "event, user", "")
		collection.AddIndex("idx_attendances_event_status", false, "event, status", "")

		return app.Save(collection)
	}, func(app core.App) error {
		collection, err := app.FindCollectionByNameOrId("attendances")
		if err != nil {
			return err
		}
		return app.Delete(collection)
	})
}
