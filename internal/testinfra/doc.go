// Bustinel - GTFS-Realtime Trip Recorder
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/bustinel

// Package testinfra provides test doubles for Bustinel's upstreams and
// containers for integration tests.
//
// # Fake upstream
//
// FeedServer serves a GTFS-Realtime feed and a GTFS static archive over
// httptest, honoring If-Modified-Since the way operator CDNs do:
//
//	srv := testinfra.NewFeedServer(t)
//	srv.SetArchive(testinfra.BuildArchive(t, map[string]string{
//	    "agency.txt": "agency_id,agency_name,agency_url,agency_timezone\nA,Metro,https://metro.example,UTC\n",
//	    "routes.txt": "route_id,agency_id,route_type\nR1,A,3\n",
//	}), time.Now())
//	srv.SetFeed(testinfra.BuildFeed(t, now, testinfra.Vehicle{ID: "v1", TripID: "t1", RouteID: "R1"}))
//
// # Containers
//
// Files with the integration build tag start real services with
// testcontainers-go. They need Docker and are skipped when it is missing:
//
//	go test -tags "integration nats" ./internal/eventprocessor/...
package testinfra
