package services

import (
	"context"
	"fmt"
	"io"
	"strconv"
	"time"

	"github.com/benmeehan/shipment-tracker/internal/models"
	"github.com/benmeehan/shipment-tracker/pkg/location"
	"github.com/rs/zerolog"
)

const consoleTimeLayout = "2006-01-02 15:04:05.000000"

// ConsoleSink prints a map link for every new coordinate. When a geocoder is
// configured the resolved address is appended.
type ConsoleSink struct {
	out      io.Writer
	geocoder location.Geocoder
	logger   zerolog.Logger
}

// NewConsoleSink creates a sink writing to out. geocoder may be nil.
func NewConsoleSink(out io.Writer, geocoder location.Geocoder, logger zerolog.Logger) *ConsoleSink {
	return &ConsoleSink{out: out, geocoder: geocoder, logger: logger}
}

func (c *ConsoleSink) Publish(ctx context.Context, event models.LocationEvent) {
	line := fmt.Sprintf("%s --- %s", event.ObservedAt.Format(consoleTimeLayout), MapsURL(event.Coordinate))

	if c.geocoder != nil {
		lookupCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
		address, err := c.geocoder.Address(lookupCtx, event.Coordinate)
		cancel()
		if err != nil {
			c.logger.Warn().Err(err).Msg("Failed to resolve address")
		} else {
			line += " (" + address + ")"
		}
	}

	if _, err := fmt.Fprintln(c.out, line); err != nil {
		c.logger.Error().Err(err).Msg("Failed to write location to console")
	}
}

// MapsURL links to the coordinate on Google Maps.
func MapsURL(c models.Coordinate) string {
	return "https://www.google.com/maps/place/" +
		strconv.FormatFloat(c.Latitude, 'f', -1, 64) + "," +
		strconv.FormatFloat(c.Longitude, 'f', -1, 64) + "?entry=ttu"
}
