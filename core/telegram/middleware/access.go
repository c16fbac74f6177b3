package middleware

import tele "gopkg.in/telebot.v4"

// AdminOptions defines how admin-only checks should behave.
type AdminOptions struct {
	AdminID  int64
	OnReject tele.HandlerFunc
}

// IsAdmin reports whether the update was sent by the configured admin.
// Updates without a sender (channel posts) are never admin.
func (o AdminOptions) IsAdmin(c tele.Context) bool {
	if o.AdminID == 0 {
		return false
	}
	user := c.Sender()
	return user != nil && user.ID == o.AdminID
}

// AdminOnlyMiddleware ensures that only the admin user can invoke downstream handlers.
// With no admin configured every call is rejected.
func AdminOnlyMiddleware(opts AdminOptions) tele.MiddlewareFunc {
	return func(next tele.HandlerFunc) tele.HandlerFunc {
		return func(c tele.Context) error {
			if !opts.IsAdmin(c) {
				if opts.OnReject != nil {
					return opts.OnReject(c)
				}
				return nil
			}
			return next(c)
		}
	}
}
