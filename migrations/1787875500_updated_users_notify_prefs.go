package migrations

import (
	"github.com/pocketbase/pocketbase/core"
	m "github.com/pocketbase/pocketbase/migrations"
)

// Notification preference flags on the builtin users auth collection. The
// RSVP trigger checks these before delivering anything.
func init() {
	m.Register(func(app core.App) error {
		users, err := app.FindCollectionByNameOrId("users")
		if err != nil {
			return err
		}

		users.Fields.Add(
			&core.BoolField{Name: "notify_rsvp_updates"},
			&core.BoolField{Name: "notify_event_updates"},
			&core.BoolField{Name: "notify_event_reminders"},
		)

		return app.Save(users)
	}, func(app core.App) error {
		users, err := app.FindCollectionByNameOrId("users")
		if err != nil {
			return err
		}

		users.Fields.RemoveByName("notify_rsvp_updates")
		users.Fields.RemoveByName("notify_event_updates")
		users.Fields.RemoveByName("notify_event_reminders")

		return app.Save(users)
	})
}
