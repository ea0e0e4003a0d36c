// Package notifications is the operator channel: short messages about
// subscription starts, cancellations and hidden listings delivered to every
// admin user.
//
// Delivery is best effort. Notifier.Notify never returns an error; failures
// are logged and the caller moves on.
//
//	deliverer := notifications.NewEmailDeliverer(sender, admins.Emails)
//	notifier := notifications.NewNotifier(deliverer, notifications.WithLogger(log))
//	notifier.Notify(ctx, notifications.Notification{
//	    Kind:    notifications.KindSubscriptionStarted,
//	    Title:   "New subscription",
//	    Message: "Provider started a subscription",
//	})
package notifications
