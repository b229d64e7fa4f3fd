// Package notely is the composition root of the notely note keeper.
//
// A notely process hosts several isolated contexts (the background
// controller, page widgets, the popup viewer) that share nothing but a
// key-value store, a deferred scheduler and a message bridge. Every write to
// the store is fanned out as a change set to the other contexts, and
// reminders are armed as named timers that fire in the background context
// even when no UI is open.
//
// Usage:
//
//	host, err := notely.New("~/.notely", notely.WithLogger(logger))
//	if err != nil {
//		return err
//	}
//
//	bg := host.Background()
//	_ = bg.Start(ctx)
//	defer bg.Stop(ctx)
//
//	page := host.Content("tab-1")
//	_, err = page.Save(ctx, content.Form{Title: "Tea", Type: core.NoteNotification, Minutes: 5})
package notely
