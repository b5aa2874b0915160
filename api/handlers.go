package api

import (
	"context"
	"errors"

	"github.com/gofiber/fiber/v2"

	"github.com/papercomputeco/graphstack/pkg/coordinator"
	"github.com/papercomputeco/graphstack/pkg/editing"
	"github.com/papercomputeco/graphstack/pkg/graph"
	"github.com/papercomputeco/graphstack/pkg/importer"
	"github.com/papercomputeco/graphstack/pkg/model"
	"github.com/papercomputeco/graphstack/pkg/store"
)

// ErrorResponse is the body of every failed request.
type ErrorResponse struct {
	Error string `json:"error"`
}

// ObjectsResponse lists the objects of one entity.
type ObjectsResponse struct {
	Entity  string           `json:"entity"`
	Objects []graph.Snapshot `json:"objects"`
	Count   int              `json:"count"`
}

// DeleteResponse names the deleted object. Objects removed by cascade rules
// are not listed.
type DeleteResponse struct {
	Deleted graph.Identity `json:"deleted"`
}

// handlePing returns a simple health check response.
func (s *Server) handlePing(c *fiber.Ctx) error {
	return c.JSON("pong")
}

// handleGetModel returns the model definition.
func (s *Server) handleGetModel(c *fiber.Ctx) error {
	return c.JSON(s.co.Model().Definition())
}

// handleListObjects returns every object of an entity. An optional limit
// query parameter caps the number returned; count is always the total.
func (s *Server) handleListObjects(c *fiber.Ctx) error {
	entity := c.Params("entity")
	if _, err := s.co.Model().Entity(entity); err != nil {
		return s.fail(c, err)
	}
	limit := c.QueryInt("limit", 0)
	if limit < 0 {
		return c.Status(fiber.StatusBadRequest).JSON(ErrorResponse{Error: "limit must not be negative"})
	}

	resp := ObjectsResponse{Entity: entity, Objects: []graph.Snapshot{}}
	err := s.co.Read(c.Context(), func(ctx context.Context, ec *editing.Context) error {
		seq, err := ec.Fetch(ctx, editing.FetchRequest{Entity: entity})
		if err != nil {
			return err
		}
		for obj := range seq {
			resp.Count++
			if limit == 0 || len(resp.Objects) < limit {
				resp.Objects = append(resp.Objects, obj.Snapshot())
			}
		}
		return nil
	})
	if err != nil {
		return s.fail(c, err)
	}
	return c.JSON(resp)
}

// handleGetObject returns a single object by entity and key.
func (s *Server) handleGetObject(c *fiber.Ctx) error {
	id, err := s.identity(c)
	if err != nil {
		return s.fail(c, err)
	}

	var snap *graph.Snapshot
	err = s.co.Read(c.Context(), func(ctx context.Context, ec *editing.Context) error {
		obj, ok, err := ec.Resolve(ctx, id)
		if err != nil || !ok {
			return err
		}
		v := obj.Snapshot()
		snap = &v
		return nil
	})
	if err != nil {
		return s.fail(c, err)
	}
	if snap == nil {
		return c.Status(fiber.StatusNotFound).JSON(ErrorResponse{Error: id.String() + " not found"})
	}
	return c.JSON(snap)
}

// handleImport applies an import document in one save. With dry_run=true the
// document is applied and discarded.
func (s *Server) handleImport(c *fiber.Ctx) error {
	doc, err := importer.ParseDocument(c.Body())
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(ErrorResponse{Error: err.Error()})
	}

	im := importer.New(s.co, importer.Options{
		DryRun: c.QueryBool("dry_run", false),
		Logger: s.logger,
	})
	result, err := im.Import(c.Context(), doc)
	if err != nil {
		// Anything short of a store or coordinator failure is a problem with
		// the document.
		var writeErr *store.WriteError
		if errors.As(err, &writeErr) || errors.Is(err, editing.ErrSaveInProgress) ||
			errors.Is(err, coordinator.ErrClosed) || errors.Is(err, coordinator.ErrQueueFull) {
			return s.fail(c, err)
		}
		return c.Status(fiber.StatusUnprocessableEntity).JSON(ErrorResponse{Error: err.Error()})
	}

	s.logger.Info("imported document",
		"inserted", result.Inserted,
		"updated", result.Updated,
		"linked", result.Linked,
	)
	return c.JSON(result)
}

// handleDeleteObject deletes an object and whatever its cascade rules reach.
func (s *Server) handleDeleteObject(c *fiber.Ctx) error {
	id, err := s.identity(c)
	if err != nil {
		return s.fail(c, err)
	}

	found := false
	err = s.co.PerformChanges(c.Context(), func(ctx context.Context, ec *editing.Context) error {
		obj, ok, err := ec.Resolve(ctx, id)
		if err != nil || !ok {
			return err
		}
		found = true
		return ec.Delete(ctx, obj)
	})
	if err != nil {
		return s.fail(c, err)
	}
	if !found {
		return c.Status(fiber.StatusNotFound).JSON(ErrorResponse{Error: id.String() + " not found"})
	}

	s.logger.Info("deleted object", "identity", id.String())
	return c.JSON(DeleteResponse{Deleted: id})
}

func (s *Server) identity(c *fiber.Ctx) (graph.Identity, error) {
	entity := c.Params("entity")
	if _, err := s.co.Model().Entity(entity); err != nil {
		return graph.Identity{}, err
	}
	return graph.NewIdentity(entity, c.Params("key")), nil
}

// fail maps an error to a status code and an ErrorResponse.
func (s *Server) fail(c *fiber.Ctx, err error) error {
	var (
		schemaErr     *model.SchemaError
		validationErr *model.ValidationError
	)

	status := fiber.StatusInternalServerError
	switch {
	case errors.As(err, &schemaErr):
		status = fiber.StatusNotFound
	case errors.As(err, &validationErr):
		status = fiber.StatusUnprocessableEntity
	case errors.Is(err, editing.ErrForeignTemporaryIdentity):
		status = fiber.StatusBadRequest
	case errors.Is(err, editing.ErrDeleteDenied), errors.Is(err, editing.ErrSaveInProgress):
		status = fiber.StatusConflict
	case errors.Is(err, coordinator.ErrClosed), errors.Is(err, coordinator.ErrQueueFull):
		status = fiber.StatusServiceUnavailable
	}

	if status == fiber.StatusInternalServerError {
		s.logger.Error("request failed", "path", c.Path(), "error", err)
	}
	return c.Status(status).JSON(ErrorResponse{Error: err.Error()})
}
