package domain

import (
	"testing"
	"time"
)

func TestStreamExpired(t *testing.T) {
	now := time.Now()
	cases := []struct {
		name      string
		expiresAt time.Time
		want      bool
	}{
		{"no expiry", time.Time{}, false},
		{"future", now.Add(time.Hour), false},
		{"exactly now", now, true},
		{"past", now.Add(-time.Minute), true},
	}
	for _, tc := range cases {
		s := &Stream{ExpiresAt: tc.expiresAt}
		if got := s.Expired(now); got != tc.want {
			t.Errorf("%s: Expired = %v, want %v", tc.name, got, tc.want)
		}
	}
}

func TestStreamPlayable(t *testing.T) {
	now := time.Now()
	s := &Stream{IsActive: true, ExpiresAt: now.Add(time.Hour)}
	if !s.Playable(now) {
		t.Error("active fresh stream should be playable")
	}
	s.IsActive = false
	if s.Playable(now) {
		t.Error("inactive stream should not be playable")
	}
	s.IsActive = true
	s.ExpiresAt = now.Add(-time.Second)
	if s.Playable(now) {
		t.Error("expired stream should not be playable")
	}
}

func TestTrackMetadataToTrack(t *testing.T) {
	m := &TrackMetadata{
		Source:          "spotify",
		SourceID:        "6rqhFgbbKwnb9MLmUQDhG6",
		Title:           "City Boys",
		Artist:          "Burna Boy",
		Album:           "I Told Them...",
		DurationSeconds: 181,
		ISRC:            "USAT22404109",
	}
	tr := m.ToTrack()
	if tr.ID == "" {
		t.Fatal("expected generated track ID")
	}
	if tr.ProviderIDs["spotify"] != "6rqhFgbbKwnb9MLmUQDhG6" {
		t.Errorf("provider IDs = %v, want spotify entry", tr.ProviderIDs)
	}
	if tr.Title != m.Title || tr.Artist != m.Artist || tr.ISRC != m.ISRC {
		t.Errorf("track fields not carried over: %+v", tr)
	}
}

func TestStreamMetadataToStream(t *testing.T) {
	m := &StreamMetadata{Source: "spotify", URL: "https://p.scdn.co/mp3-preview/x", Format: "mp3"}
	s := m.ToStream("track-1")
	if s.TrackID != "track-1" {
		t.Errorf("TrackID = %q", s.TrackID)
	}
	if !s.IsActive || s.HealthScore != StreamHealthMax || s.FailureCount != 0 {
		t.Errorf("new stream should start healthy and active: %+v", s)
	}
}

func TestArtistInfoStale(t *testing.T) {
	now := time.Now()
	a := &ArtistInfo{Name: "burna boy", UpdatedAt: now.Add(-8 * 24 * time.Hour)}
	if !a.Stale(now, 7*24*time.Hour) {
		t.Error("8 day old snapshot should be stale at 7 day TTL")
	}
	a.UpdatedAt = now.Add(-time.Hour)
	if a.Stale(now, 7*24*time.Hour) {
		t.Error("1 hour old snapshot should not be stale")
	}
	if a.Stale(now, 0) {
		t.Error("zero TTL disables staleness")
	}
}
