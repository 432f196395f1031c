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

		collection := core.NewBaseCollection("notifications")

		collection.Fields.Add(
			&core.RelationField{Name: "user", Required: true, CollectionId: users.Id, MaxSelect: 1},
			&core.SelectField{Name: "type", Required: true, MaxSelect: 1, Values: []string{
				"rsvp_confirmation",
				"rsvp_waitlist",
				"rsvp_cancelled",
				"waitlist_promoted",
			}},
			&core.TextField{Name: "title", Required: true},
			&core.TextField{Name: "message", Required: true},
			&core.RelationField{Name: "event", CollectionId: events.Id, MaxSelect: 1},
			&core.BoolField{Name: "is_read"},
			&core.AutodateField{Name: "created", OnCreate: true},
		)

		collection.AddIndex("idx_notifications_user_created", false, "user, created", "")
		collection.AddIndex("idx_notifications_user_is_read", false, "user, is_read", "")

		return app.Save(collection)
	}, func(app core.App) error {
		collection, err := app.FindCollectionByNameOrId("notifications")
		if err != nil {
			return err
		}
		return app.Delete(collection)
	})
}
