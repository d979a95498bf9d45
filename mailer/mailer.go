// Package mailer is the outbound email collaborator. Delivery is
// fire-and-forget from the core's point of view: callers log failures but
// never roll back the state change that preceded the send.
package mailer

import "context"

type Mailer interface {
	SendOTP(ctx context.Context, email, code string) error
	SendPassword(ctx context.Context, email, link, password string) error
}
