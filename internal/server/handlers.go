package server

import (
	"bytes"
	"encoding/json"
	"time"

	"github.com/gofiber/fiber/v2"

	"github.com/rshade/carboncounter/internal/backend"
	"github.com/rshade/carboncounter/internal/engine"
	"github.com/rshade/carboncounter/internal/factors"
	"github.com/rshade/carboncounter/internal/greenops"
	"github.com/rshade/carboncounter/internal/tracking"
)

// FixRequest is the wire form of a location fix.
type FixRequest struct {
	Latitude           float64 `json:"latitude"`
	Longitude          float64 `json:"longitude"`
	TimestampMs        int64   `json:"timestamp_ms"`
	Speed              float64 `json:"speed"`
	HorizontalAccuracy float64 `json:"horizontal_accuracy"`
}

// Fix converts the request into a tracking.Fix.
func (r FixRequest) Fix() tracking.Fix {
	return tracking.Fix{
		Latitude:           r.Latitude,
		Longitude:          r.Longitude,
		Timestamp:          time.UnixMilli(r.TimestampMs).UTC(),
		Speed:              r.Speed,
		HorizontalAccuracy: r.HorizontalAccuracy,
	}
}

// SessionEndResponse is returned when a session ends.
type SessionEndResponse struct {
	engine.Summary

	Report string `json:"report,omitempty"`
}

func (s *Server) startSession(c *fiber.Ctx) error {
	id, err := s.engine.StartSession(c.UserContext())
	if err != nil {
		return engineError(err)
	}
	return c.Status(fiber.StatusCreated).JSON(fiber.Map{"session_id": id})
}

func (s *Server) endSession(c *fiber.Ctx) error {
	summary, err := s.engine.EndSession(c.UserContext())
	if err != nil {
		return engineError(err)
	}
	return c.JSON(endResponse(summary))
}

func (s *Server) permissionDenied(c *fiber.Ctx) error {
	if _, err := s.engine.PermissionDenied(c.UserContext()); err != nil {
		return engineError(err)
	}
	return c.SendStatus(fiber.StatusNoContent)
}

func endResponse(summary engine.Summary) SessionEndResponse {
	resp := SessionEndResponse{Summary: summary}
	if !summary.IsZero() {
		resp.Report = greenops.DailyReport(summary.TodayDistanceMeters, summary.TodayGrams)
	}
	return resp
}

// submitFixes accepts one fix object or an array of them.
func (s *Server) submitFixes(c *fiber.Ctx) error {
	body := bytes.TrimSpace(c.Body())
	if len(body) == 0 {
		return fiber.NewError(fiber.StatusBadRequest, "empty body")
	}

	var reqs []FixRequest
	if body[0] == '[' {
		if err := json.Unmarshal(body, &reqs); err != nil {
			return fiber.NewError(fiber.StatusBadRequest, "invalid fixes: "+err.Error())
		}
	} else {
		var one FixRequest
		if err := json.Unmarshal(body, &one); err != nil {
			return fiber.NewError(fiber.StatusBadRequest, "invalid fix: "+err.Error())
		}
		reqs = []FixRequest{one}
	}

	accepted, dropped := 0, 0
	for _, r := range reqs {
		if s.engine.SubmitFix(r.Fix()) {
			accepted++
		} else {
			dropped++
		}
	}
	return c.Status(fiber.StatusAccepted).JSON(fiber.Map{"queued": accepted, "dropped": dropped})
}

func (s *Server) state(c *fiber.Ctx) error {
	snap, err := s.engine.Snapshot(c.UserContext())
	if err != nil {
		return engineError(err)
	}
	return c.JSON(snap)
}

func (s *Server) setVehicle(c *fiber.Ctx) error {
	var v factors.VehicleProfile
	if err := c.BodyParser(&v); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "invalid vehicle")
	}
	if v.Year == "" || v.Make == "" || v.Model == "" {
		return fiber.NewError(fiber.StatusBadRequest, "year, make and model are required")
	}

	factor, matched, err := s.engine.SetVehicle(c.UserContext(), v)
	if err != nil {
		return engineError(err)
	}
	resp := fiber.Map{"vehicle": v, "matched": matched, "factor": factor.String()}
	if gpm, ok := factor.GramsPerMile(); ok {
		resp["grams_per_mile"] = gpm
	}
	return c.JSON(resp)
}

func (s *Server) years(c *fiber.Ctx) error {
	if s.table == nil {
		return fiber.ErrNotFound
	}
	return c.JSON(s.table.AvailableYears())
}

func (s *Server) makes(c *fiber.Ctx) error {
	if s.table == nil {
		return fiber.ErrNotFound
	}
	return c.JSON(s.table.AvailableMakes(c.Query("year")))
}

func (s *Server) models(c *fiber.Ctx) error {
	if s.table == nil {
		return fiber.ErrNotFound
	}
	return c.JSON(s.table.AvailableModels(c.Query("year"), c.Query("make")))
}

func (s *Server) leaderboard(c *fiber.Ctx) error {
	if s.board == nil {
		return fiber.ErrNotFound
	}
	entries, stale, err := s.board.Entries(c.UserContext())
	if err != nil {
		return fiber.NewError(fiber.StatusBadGateway, err.Error())
	}

	resp := fiber.Map{"entries": entries, "stale": stale}
	if snap, snapErr := s.engine.Snapshot(c.UserContext()); snapErr == nil {
		resp["username"] = snap.Username
		resp["rank"] = backend.Rank(entries, snap.Username)
	}
	return c.JSON(resp)
}
