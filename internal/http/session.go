package http

import (
	"context"
	"net/http"

	"snowtrack/internal/log"
	"snowtrack/internal/session"
)

type sessionContextKey struct{}

// withSession binds the request to the caller's session, starting one and
// issuing the cookie when the caller has none or its session expired.
func (s *Server) withSession(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		logger := log.FromContext(ctx)

		cookie, err := s.cookies.Get(r, cookieName)
		if err != nil {
			// Tampered or stale key: continue with the fresh cookie session
			logger.DebugContext(ctx, "Ignoring undecodable session cookie", log.FieldError, err)
		}
		sid, _ := cookie.Values[cookieIDKey].(string)

		sess, err := s.sessions.GetOrCreate(ctx, sid)
		if err != nil {
			s.writeError(w, r, err, log.ComponentSession, log.OpStartup)
			return
		}

		if sess.ID != sid {
			cookie.Values[cookieIDKey] = sess.ID
			if err := cookie.Save(r, w); err != nil {
				s.writeError(w, r, err, log.ComponentSession, log.OpStartup)
				return
			}
		}

		ctx = context.WithValue(ctx, sessionContextKey{}, sess)
		ctx = context.WithValue(ctx, log.LoggerContextKey, logger.With(log.FieldSessionID, sess.ID))
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func sessionFrom(ctx context.Context) *session.Session {
	sess, _ := ctx.Value(sessionContextKey{}).(*session.Session)
	return sess
}

// handleEndSession discards the caller's records and expires the cookie.
func (s *Server) handleEndSession(w http.ResponseWriter, r *http.Request) {
	sess := sessionFrom(r.Context())
	s.sessions.Delete(sess.ID)

	cookie, _ := s.cookies.Get(r, cookieName)
	cookie.Options.MaxAge = -1
	if err := cookie.Save(r, w); err != nil {
		s.writeError(w, r, err, log.ComponentSession, log.OpShutdown)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
