package chat

import "time"

// SetNow replaces the responder's clock.
func (r *Responder) SetNow(now func() time.Time) { r.now = now }
