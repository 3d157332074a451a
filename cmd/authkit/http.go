package main

import (
	"context"
	"encoding/json"
	"strings"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/session"

	authkit "github.com/goliatone/go-authkit"
	"github.com/goliatone/go-authkit/activitymap"
	"github.com/goliatone/go-authkit/config"
	"github.com/goliatone/go-authkit/plugins/ldap"
)

// sessionIDKey holds the user id string in the fiber session.
const sessionIDKey = "auth_user_id"

func newService(cfg *config.Config, store authkit.UserStore, logger authkit.Logger) (*authkit.Service, error) {
	notifier := authkit.NewTemplateNotifier(nil).WithLogger(logger)

	svc := authkit.NewService(store, cfg.Auth).
		WithLogger(logger).
		WithHasher(cfg.Auth.Hasher()).
		WithNotifier(notifier).
		WithLinkBuilder(authkit.NewLinkBuilder(cfg.Auth.BaseURL)).
		WithActivitySink(authkit.ActivitySinkFunc(func(_ context.Context, e authkit.ActivityEvent) error {
			logger.Info("activity", activitymap.Normalize(e).KeyValues()...)
			return nil
		}))

	if cfg.LDAP.Enabled() {
		plugin := ldap.New(ldap.Config{
			URL:          cfg.LDAP.URL,
			BindDN:       cfg.LDAP.BindDN,
			BindPassword: cfg.LDAP.BindPassword,
			BaseDN:       cfg.LDAP.BaseDN,
			UserFilter:   cfg.LDAP.UserFilter,
		}, ldap.WithLogger(logger))
		if err := svc.RegisterPlugin(plugin); err != nil {
			return nil, err
		}
	}

	return svc, nil
}

func newApp(cfg *config.Config, svc *authkit.Service, logger authkit.Logger) *fiber.App {
	app := fiber.New(fiber.Config{
		DisableStartupMessage: true,
	})

	store := session.New()

	app.All("/"+cfg.Auth.GetRoute()+"*", authHandler(svc, store, logger))

	return app
}

func authHandler(svc *authkit.Service, store *session.Store, logger authkit.Logger) fiber.Handler {
	return func(c *fiber.Ctx) error {
		sess, err := store.Get(c)
		if err != nil {
			return err
		}

		body, err := bodyParams(c)
		if err != nil {
			return c.Status(fiber.StatusBadRequest).JSON(authkit.Failure(fiber.StatusBadRequest, "invalid body", "BAD_REQUEST"))
		}

		fs := &fiberSession{sess: sess}
		out := svc.Dispatch(c.UserContext(), authkit.Intent{
			Path:    c.Params("*"),
			Method:  c.Method(),
			Query:   queryParams(c),
			Body:    body,
			Session: fs,
		})

		if fs.dirty {
			if err := sess.Save(); err != nil {
				logger.Error("session save failed", "error", err)
			}
		}

		if out.Redirect != "" {
			return c.Redirect(out.Redirect, out.Code)
		}
		return c.Status(out.Code).JSON(out)
	}
}

func queryParams(c *fiber.Ctx) authkit.Params {
	out := authkit.Params{}
	for k, v := range c.Queries() {
		out[k] = v
	}
	return out
}

func bodyParams(c *fiber.Ctx) (authkit.Params, error) {
	out := authkit.Params{}
	if len(c.Body()) == 0 {
		return out, nil
	}

	if strings.Contains(strings.ToLower(string(c.Request().Header.ContentType())), "json") {
		if err := json.Unmarshal(c.Body(), &out); err != nil {
			return nil, err
		}
		return out, nil
	}

	c.Request().PostArgs().VisitAll(func(key, value []byte) {
		out[string(key)] = string(value)
	})
	return out, nil
}

// fiberSession stores only the user id string, the session storage never
// sees engine types.
type fiberSession struct {
	sess  *session.Session
	dirty bool
}

func (s *fiberSession) Get(key string) (any, bool) {
	if key != authkit.SessionUserKey {
		v := s.sess.Get(key)
		return v, v != nil
	}

	id, ok := s.sess.Get(sessionIDKey).(string)
	if !ok || id == "" {
		return nil, false
	}
	return authkit.SessionUser{ID: id}, true
}

func (s *fiberSession) Set(key string, value any) {
	s.dirty = true
	if key != authkit.SessionUserKey {
		s.sess.Set(key, value)
		return
	}

	if user, ok := value.(authkit.SessionUser); ok && user.ID != "" {
		s.sess.Set(sessionIDKey, user.ID)
		return
	}
	s.sess.Delete(sessionIDKey)
}
