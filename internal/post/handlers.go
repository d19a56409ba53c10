package post

import (
	"context"
	"errors"
	"strconv"
	"strings"

	"backend-lacakair/internal/auth"
	"backend-lacakair/internal/imaging"
	"backend-lacakair/internal/ingest"
	"backend-lacakair/internal/shared/geo"

	"github.com/gofiber/fiber/v2"
)

// Ingestor turns an uploaded photo into a hosted image URL.
type Ingestor interface {
	Process(ctx context.Context, raw imaging.RawImage) (ingest.Result, error)
}

// ChangeNotifier is told after every successful mutation of the post set.
type ChangeNotifier interface {
	PostsChanged(ctx context.Context)
}

const (
	unknownUser           = "Unknown"
	defaultNearbyRadiusKm = 5
)

func RegisterRoutes(r fiber.Router, svc *Service, ing Ingestor, notify ChangeNotifier, authMiddleware, throttle fiber.Handler) {
	if throttle == nil {
		throttle = func(c *fiber.Ctx) error { return c.Next() }
	}

	r.Get("/", func(c *fiber.Ctx) error {
		posts, err := svc.List(c.Context())
		if err != nil {
			return fiber.NewError(fiber.StatusInternalServerError, err.Error())
		}
		return c.JSON(posts)
	})

	r.Get("/nearby", func(c *fiber.Ctx) error {
		lat, errLat := strconv.ParseFloat(c.Query("lat"), 64)
		lng, errLng := strconv.ParseFloat(c.Query("lng"), 64)
		if errLat != nil || errLng != nil || !validLatitude(lat) || !validLongitude(lng) {
			return fiber.NewError(fiber.StatusBadRequest, "lat and lng required")
		}
		radius := float64(defaultNearbyRadiusKm)
		if raw := c.Query("radius_km"); raw != "" {
			v, err := strconv.ParseFloat(raw, 64)
			if err != nil || !geo.Finite(v) {
				return fiber.NewError(fiber.StatusBadRequest, "radius_km must be a number")
			}
			if v > 0 {
				radius = v
			}
		}
		posts, err := svc.Nearby(c.Context(), lat, lng, radius)
		if err != nil {
			return fiber.NewError(fiber.StatusInternalServerError, err.Error())
		}
		return c.JSON(posts)
	})

	r.Get("/:id", func(c *fiber.Ctx) error {
		p, err := svc.Get(c.Context(), c.Params("id"))
		if err != nil {
			return storeError(err)
		}
		return c.JSON(p)
	})

	r.Post("/", authMiddleware, throttle, func(c *fiber.Ctx) error {
		fh, err := c.FormFile("image")
		if err != nil {
			return fiber.NewError(fiber.StatusBadRequest, "image file required")
		}
		input, err := postFromForm(c)
		if err != nil {
			return fiber.NewError(fiber.StatusBadRequest, err.Error())
		}

		raw, err := ingest.FromFormFile(fh)
		if err != nil {
			return fiber.NewError(fiber.StatusBadRequest, err.Error())
		}
		res, err := ing.Process(c.Context(), raw)
		if err != nil {
			return fiber.NewError(ingest.HTTPStatus(err), err.Error())
		}
		input.ImageURL = res.URL

		created, err := svc.Create(c.Context(), input)
		if err != nil {
			return fiber.NewError(fiber.StatusInternalServerError, err.Error())
		}
		notify.PostsChanged(c.Context())
		return c.Status(fiber.StatusCreated).JSON(created)
	})

	r.Post("/:id/like", authMiddleware, func(c *fiber.Ctx) error {
		userID := auth.UserID(c)
		likes, err := svc.ToggleLike(c.Context(), c.Params("id"), userID)
		if err != nil {
			return storeError(err)
		}
		notify.PostsChanged(c.Context())
		return c.JSON(fiber.Map{
			"likes": likes,
			"liked": Post{Likes: likes}.LikedBy(userID),
		})
	})

	r.Delete("/:id", authMiddleware, func(c *fiber.Ctx) error {
		if err := svc.Delete(c.Context(), c.Params("id"), auth.UserID(c)); err != nil {
			return storeError(err)
		}
		notify.PostsChanged(c.Context())
		return c.SendStatus(fiber.StatusNoContent)
	})
}

func postFromForm(c *fiber.Ctx) (Post, error) {
	p := Post{
		UserID:   auth.UserID(c),
		UserName: strings.TrimSpace(auth.UserName(c)),
		Caption:  strings.TrimSpace(c.FormValue("caption")),
	}
	if p.UserName == "" {
		p.UserName = unknownUser
	}

	latRaw, lngRaw := c.FormValue("latitude"), c.FormValue("longitude")
	if latRaw == "" && lngRaw == "" {
		return p, nil
	}
	if latRaw == "" || lngRaw == "" {
		return Post{}, errors.New("latitude and longitude must be given together")
	}
	lat, err := strconv.ParseFloat(latRaw, 64)
	if err != nil || !validLatitude(lat) {
		return Post{}, errors.New("latitude must be within -90..90")
	}
	lng, err := strconv.ParseFloat(lngRaw, 64)
	if err != nil || !validLongitude(lng) {
		return Post{}, errors.New("longitude must be within -180..180")
	}
	return p.WithLocation(lat, lng, strings.TrimSpace(c.FormValue("location_name"))), nil
}

// NaN passes range comparisons, so finiteness is checked first.
func validLatitude(v float64) bool { return geo.Finite(v) && v >= -90 && v <= 90 }

func validLongitude(v float64) bool { return geo.Finite(v) && v >= -180 && v <= 180 }

func storeError(err error) error {
	switch {
	case errors.Is(err, ErrNotFound):
		return fiber.NewError(fiber.StatusNotFound, err.Error())
	case errors.Is(err, ErrForbidden):
		return fiber.NewError(fiber.StatusForbidden, err.Error())
	default:
		return fiber.NewError(fiber.StatusInternalServerError, err.Error())
	}
}
