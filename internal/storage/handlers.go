package storage

import (
	"context"

	"backend-lacakair/internal/auth"
	"backend-lacakair/internal/imaging"
	"backend-lacakair/internal/ingest"

	"github.com/gofiber/fiber/v2"
)

type Ingestor interface {
	Process(ctx context.Context, raw imaging.RawImage) (ingest.Result, error)
}

func RegisterRoutes(r fiber.Router, svc *Service, ing Ingestor, authMiddleware fiber.Handler) {
	r.Post("/upload", authMiddleware, func(c *fiber.Ctx) error {
		fh, err := c.FormFile("image")
		if err != nil {
			return fiber.NewError(fiber.StatusBadRequest, "image file required")
		}
		kind := c.FormValue("kind", KindPhoto)

		raw, err := ingest.FromFormFile(fh)
		if err != nil {
			return fiber.NewError(fiber.StatusBadRequest, err.Error())
		}
		res, err := ing.Process(c.Context(), raw)
		if err != nil {
			return fiber.NewError(ingest.HTTPStatus(err), err.Error())
		}

		id, err := svc.SaveObject(c.Context(), auth.UserID(c), res.URL, kind)
		if err != nil {
			return fiber.NewError(fiber.StatusInternalServerError, err.Error())
		}
		return c.Status(fiber.StatusCreated).JSON(fiber.Map{
			"id":     id,
			"url":    res.URL,
			"width":  res.Width,
			"height": res.Height,
			"bytes":  res.Bytes,
		})
	})
}
