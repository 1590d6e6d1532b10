// Bustinel - GTFS-Realtime Trip Recorder
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/bustinel

package realtime

import (
	"context"
	"runtime/debug"
	"time"

	"github.com/google/uuid"

	"github.com/tomtom215/bustinel/internal/cache"
	"github.com/tomtom215/bustinel/internal/gtfsrt"
	"github.com/tomtom215/bustinel/internal/logging"
	"github.com/tomtom215/bustinel/internal/metrics"
	"github.com/tomtom215/bustinel/internal/models"
)

// entityResult carries a classified entity. record, agency, route and
// cacheKey are set only for OutcomeNew.
type entityResult struct {
	outcome  Outcome
	record   models.Record
	agency   models.Agency
	route    models.Route
	cacheKey string
}

// process classifies one entity. It never panics.
func (p *Pipeline) process(ctx context.Context, vp gtfsrt.VehiclePosition) (res entityResult) {
	log := logging.Ctx(ctx).With().
		Str("entity", vp.EntityID).
		Str("vehicle", vp.VehicleID).
		Str("trip", vp.TripID).
		Str("route", vp.RouteID).
		Logger()

	defer func() {
		if r := recover(); r != nil {
			log.Error().Interface("panic", r).Bytes("stack", debug.Stack()).Msg("Entity processing panicked")
			metrics.RecordError(ServiceName, metrics.CategoryDefect)
			res = entityResult{outcome: OutcomeFailed}
		}
	}()

	if vp.VehicleID == "" || vp.TripID == "" {
		log.Warn().Msg("Vehicle entity without vehicle or trip id")
		metrics.RecordError(ServiceName, metrics.CategoryValidation)
		return entityResult{outcome: OutcomeSkipped}
	}

	route, err := p.refs.GetRoute(ctx, vp.RouteID)
	if err != nil {
		log.Error().Err(err).Msg("Route lookup failed")
		metrics.RecordError(ServiceName, metrics.CategoryPersistence)
		return entityResult{outcome: OutcomeFailed}
	}
	if route == nil {
		log.Warn().Msg("Route not found")
		metrics.RecordError(ServiceName, metrics.CategoryResolution)
		return entityResult{outcome: OutcomeSkipped}
	}

	agency, err := p.refs.GetAgency(ctx, route.AgencyID)
	if err != nil {
		log.Error().Err(err).Msg("Agency lookup failed")
		metrics.RecordError(ServiceName, metrics.CategoryPersistence)
		return entityResult{outcome: OutcomeFailed}
	}
	if agency == nil {
		log.Warn().Str("agency_id", route.AgencyID).Msg("Agency not found")
		metrics.RecordError(ServiceName, metrics.CategoryResolution)
		return entityResult{outcome: OutcomeSkipped}
	}

	record := buildRecord(vp, route, agency)
	key := cache.Key(p.opts.CachePrefix, record.Fingerprint())

	hit, err := p.cache.Exists(ctx, key)
	if err != nil {
		// Fall through to the durable store.
		log.Warn().Err(err).Msg("Cache lookup failed")
		metrics.RecordError(ServiceName, metrics.CategoryCache)
	}
	if hit {
		return entityResult{outcome: OutcomeCached}
	}

	existing, err := p.records.FindOne(ctx, record.NaturalKey())
	if err != nil {
		log.Error().Err(err).Msg("Record lookup failed")
		metrics.RecordError(ServiceName, metrics.CategoryPersistence)
		return entityResult{outcome: OutcomeFailed}
	}
	if existing != nil {
		log.Warn().Str("record_id", existing.ID).Msg("Record prematurely disposed from cache, re-caching")
		if err := p.cache.Set(ctx, key, existing.ID, p.opts.CacheTTL); err != nil {
			log.Warn().Err(err).Msg("Failed to re-cache record fingerprint")
			metrics.RecordError(ServiceName, metrics.CategoryCache)
		}
		return entityResult{outcome: OutcomePersisted}
	}

	return entityResult{
		outcome:  OutcomeNew,
		record:   record,
		agency:   *agency,
		route:    *route,
		cacheKey: key,
	}
}

// buildRecord denormalizes the entity with its route and agency. The route
// type is copied onto the vehicle.
func buildRecord(vp gtfsrt.VehiclePosition, route *models.Route, agency *models.Agency) models.Record {
	observed := vp.Timestamp
	if observed.IsZero() {
		observed = time.Now().UTC().Truncate(time.Second)
	}

	return models.Record{
		ID: uuid.NewString(),
		Vehicle: models.Vehicle{
			ID:    vp.VehicleID,
			Label: models.NormalizeLabel(vp.Label),
			Plate: models.NormalizePlate(vp.LicensePlate),
			Type:  route.VehicleType,
		},
		Trip: models.Trip{
			ID:        vp.TripID,
			Direction: vp.DirectionID,
			Route: models.RouteSnapshot{
				ID:        route.ID,
				ShortName: route.ShortName,
				LongName:  route.LongName,
				Type:      route.VehicleType,
			},
		},
		Agency: models.AgencySnapshot{
			ID:       agency.ID,
			Name:     agency.Name,
			URL:      agency.URL,
			Timezone: agency.Timezone,
		},
		Timestamp: observed,
	}
}
