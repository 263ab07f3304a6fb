// Package review serves the frame navigator over HTTP.
package review

import (
	"bytes"
	_ "embed"
	"errors"
	"image/jpeg"
	"log/slog"
	"strconv"

	"github.com/andresmejia3/facecache/internal/navigator"
	"github.com/gofiber/fiber/v2"
)

//go:embed index.html
var indexHTML []byte

type Server struct {
	app  *fiber.App
	nav  *navigator.Controller
	log  *slog.Logger
	jpeg jpeg.Options
}

func NewServer(nav *navigator.Controller, logger *slog.Logger) *Server {
	s := &Server{nav: nav, log: logger, jpeg: jpeg.Options{Quality: 90}}
	s.app = fiber.New(fiber.Config{
		AppName:               "facecache review",
		DisableStartupMessage: true,
		ErrorHandler:          errorHandler(logger),
	})
	s.routes()
	return s
}

func (s *Server) routes() {
	s.app.Get("/", s.index)
	s.app.Get("/health", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{"status": "ok"})
	})

	api := s.app.Group("/api")
	api.Get("/frame", s.current)
	api.Get("/frame.jpg", s.frameImage)
	api.Post("/frame/show", s.show)
	api.Post("/frame/next", s.next)
	api.Post("/frame/prev", s.previous)
	api.Post("/frame/goto/:index", s.goTo)
	api.Post("/cache/clear", s.clearCache)
}

// App exposes the fiber app, mainly for app.Test.
func (s *Server) App() *fiber.App { return s.app }

func (s *Server) Listen(addr string) error { return s.app.Listen(addr) }

func (s *Server) Shutdown() error { return s.app.Shutdown() }

func (s *Server) index(c *fiber.Ctx) error {
	c.Type("html")
	return c.Send(indexHTML)
}

func (s *Server) current(c *fiber.Ctx) error {
	return c.JSON(s.nav.Current())
}

func (s *Server) show(c *fiber.Ctx) error {
	return s.respond(c)(s.nav.Show(c.UserContext()))
}

func (s *Server) next(c *fiber.Ctx) error {
	return s.respond(c)(s.nav.Next(c.UserContext()))
}

func (s *Server) previous(c *fiber.Ctx) error {
	return s.respond(c)(s.nav.Previous(c.UserContext()))
}

func (s *Server) goTo(c *fiber.Ctx) error {
	n, err := strconv.Atoi(c.Params("index"))
	if err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "frame index must be an integer")
	}
	return s.respond(c)(s.nav.GoTo(c.UserContext(), n))
}

func (s *Server) clearCache(c *fiber.Ctx) error {
	return s.respond(c)(s.nav.ClearCache(c.UserContext()))
}

func (s *Server) respond(c *fiber.Ctx) func(navigator.View, error) error {
	return func(v navigator.View, err error) error {
		if err != nil {
			return err
		}
		for _, m := range v.Messages {
			s.log.Debug(m, "frame", v.Index)
		}
		return c.JSON(v)
	}
}

func (s *Server) frameImage(c *fiber.Ctx) error {
	img := s.nav.Frame()
	if img == nil {
		return fiber.NewError(fiber.StatusNotFound, "no frame shown yet")
	}
	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, img, &s.jpeg); err != nil {
		return err
	}
	c.Set(fiber.HeaderCacheControl, "no-store")
	c.Type("jpg")
	return c.Send(buf.Bytes())
}

func errorHandler(logger *slog.Logger) fiber.ErrorHandler {
	return func(c *fiber.Ctx, err error) error {
		var fiberErr *fiber.Error
		if errors.As(err, &fiberErr) {
			return c.Status(fiberErr.Code).JSON(fiber.Map{
				"error": fiber.Map{"message": fiberErr.Message},
			})
		}

		logger.Error("request failed",
			slog.Any("error", err),
			slog.String("path", c.Path()),
		)
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": fiber.Map{"message": err.Error()},
		})
	}
}
