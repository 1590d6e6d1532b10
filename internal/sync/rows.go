// Bustinel - GTFS-Realtime Trip Recorder
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/bustinel

package sync

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/tomtom215/bustinel/internal/gtfsstatic"
	"github.com/tomtom215/bustinel/internal/logging"
	"github.com/tomtom215/bustinel/internal/metrics"
	"github.com/tomtom215/bustinel/internal/models"
	"github.com/tomtom215/bustinel/internal/validation"
)

const (
	tableAgencies = "agencies"
	tableRoutes   = "routes"
)

var errAmbiguousAgency = errors.New("agency_id is required when the snapshot lists several agencies")

type tableResult struct {
	upserted int
	rejected int
}

type applyResult struct {
	agencies tableResult
	routes   tableResult
}

func (r *tableResult) upsert(table string) {
	r.upserted++
	metrics.ReferenceRowsTotal.WithLabelValues(table, "upserted").Inc()
}

func (r *tableResult) reject(table string) {
	r.rejected++
	metrics.ReferenceRowsTotal.WithLabelValues(table, "rejected").Inc()
}

// apply upserts every valid row of the archive. Only a table that cannot be
// decoded at all is returned as an error.
func (s *Synchronizer) apply(ctx context.Context, archive *gtfsstatic.Archive) (applyResult, error) {
	var result applyResult
	log := logging.Ctx(ctx)

	agencyRows, err := archive.Agencies()
	if errors.Is(err, gtfsstatic.ErrMissingTable) {
		log.Warn().Str("table", gtfsstatic.AgencyFile).Msg("Snapshot has no agency table")
	} else if err != nil {
		return result, err
	}

	routeRows, err := archive.Routes()
	if err != nil {
		return result, err
	}

	for i := range agencyRows {
		if err := s.applyAgency(ctx, agencyRows[i], len(agencyRows)); err != nil {
			log.Warn().Err(err).Int("row", i+1).Str("agency_id", agencyRows[i].AgencyID).Msg("Rejected agency row")
			result.agencies.reject(tableAgencies)
			continue
		}
		result.agencies.upsert(tableAgencies)
	}

	agencyCount, err := s.store.CountAgencies(ctx)
	if err != nil {
		return result, fmt.Errorf("count agencies: %w", err)
	}

	needsDefault := false
	for i := range routeRows {
		route, err := buildRoute(routeRows[i], agencyCount)
		if err == nil {
			err = s.store.UpsertRoute(ctx, route)
			if err != nil {
				metrics.RecordError(ServiceName, metrics.CategoryPersistence)
			}
		}
		if err != nil {
			log.Warn().Err(err).Int("row", i+1).Str("route_id", routeRows[i].RouteID).Msg("Rejected route row")
			result.routes.reject(tableRoutes)
			continue
		}
		if route.AgencyID == models.DefaultAgencyID {
			needsDefault = true
		}
		result.routes.upsert(tableRoutes)
	}

	if needsDefault && len(agencyRows) == 0 {
		if err := s.ensureDefaultAgency(ctx); err != nil {
			log.Warn().Err(err).Msg("Could not create default agency")
		}
	}
	return result, nil
}

func (s *Synchronizer) applyAgency(ctx context.Context, row gtfsstatic.AgencyRow, total int) error {
	id := strings.TrimSpace(row.AgencyID)
	if id == "" {
		if total > 1 {
			metrics.RecordError(ServiceName, metrics.CategoryValidation)
			return errAmbiguousAgency
		}
		id = models.DefaultAgencyID
	}
	if err := validation.ValidateStruct(row); err != nil {
		metrics.RecordError(ServiceName, metrics.CategoryValidation)
		return err
	}

	agency := models.Agency{
		ID:       id,
		Name:     row.Name,
		URL:      row.URL,
		Timezone: row.Timezone,
		Lang:     models.OptionalString(row.Lang),
		Phone:    models.OptionalString(row.Phone),
		FareURL:  models.OptionalString(row.FareURL),
		Email:    models.OptionalString(row.Email),
	}
	if err := s.store.UpsertAgency(ctx, agency); err != nil {
		metrics.RecordError(ServiceName, metrics.CategoryPersistence)
		return err
	}
	return nil
}

// buildRoute maps a routes.txt row. A missing agency_id becomes "default"
// only while the store holds at most one agency.
func buildRoute(row gtfsstatic.RouteRow, agencyCount int) (models.Route, error) {
	if err := validation.ValidateStruct(row); err != nil {
		metrics.RecordError(ServiceName, metrics.CategoryValidation)
		return models.Route{}, err
	}

	agencyID := strings.TrimSpace(row.AgencyID)
	if agencyID == "" {
		if agencyCount > 1 {
			metrics.RecordError(ServiceName, metrics.CategoryValidation)
			return models.Route{}, errAmbiguousAgency
		}
		agencyID = models.DefaultAgencyID
	}

	return models.Route{
		ID:          strings.TrimSpace(row.RouteID),
		AgencyID:    agencyID,
		ShortName:   models.OptionalString(row.ShortName),
		LongName:    models.OptionalString(row.LongName),
		Description: models.OptionalString(row.Description),
		VehicleType: models.ParseVehicleType(row.RouteType),
	}, nil
}

func (s *Synchronizer) ensureDefaultAgency(ctx context.Context) error {
	existing, err := s.store.GetAgency(ctx, models.DefaultAgencyID)
	if err != nil {
		return err
	}
	if existing != nil {
		return nil
	}

	agency := s.defaultAgency()
	if err := s.store.UpsertAgency(ctx, agency); err != nil {
		metrics.RecordError(ServiceName, metrics.CategoryPersistence)
		return err
	}
	logging.Ctx(ctx).Info().Str("name", agency.Name).Msg("Created default agency for single-operator snapshot")
	return nil
}
