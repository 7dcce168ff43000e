package locator

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"go.bug.st/serial/enumerator"
)

// ErrNotFound indicates that no serial port matched a known radio signature.
var ErrNotFound = errors.New("no mesh radio serial port found")

// knownVendorIDs lists USB vendor IDs of serial bridge chips and boards the
// supported radios ship with. Matching is case-insensitive on the hex string.
var knownVendorIDs = map[string]string{
	"1a86": "CH340/CH9102 (WCH)",
	"10c4": "CP210x (Silicon Labs)",
	"0403": "FTDI",
	"303a": "ESP32 native USB (Espressif)",
	"239a": "RAK/Adafruit bootloader",
	"2e8a": "RP2040 (Raspberry Pi)",
}

// productHints is the fallback name-substring heuristic, mirroring the
// descriptions USB stacks report for the same bridge chips.
var productHints = []string{
	"ch340",
	"ch9102",
	"cp210",
	"ftdi",
	"usb serial",
	"meshtastic",
}

// Port describes one enumerated serial endpoint candidate.
type Port struct {
	Name    string `json:"name"`
	IsUSB   bool   `json:"isUsb"`
	VID     string `json:"vid,omitempty"`
	PID     string `json:"pid,omitempty"`
	Product string `json:"product,omitempty"`
	// Match is true when the port matches a known radio signature.
	Match bool `json:"match"`
}

// Enumerator lists serial port details. The production implementation wraps
// go.bug.st/serial/enumerator; tests inject fakes.
type Enumerator interface {
	DetailedPorts() ([]*enumerator.PortDetails, error)
}

// SystemEnumerator enumerates the host's serial ports.
type SystemEnumerator struct{}

// DetailedPorts returns the host's serial ports with USB metadata.
func (SystemEnumerator) DetailedPorts() ([]*enumerator.PortDetails, error) {
	return enumerator.GetDetailedPortsList()
}

// Locator resolves the radio's serial endpoint.
type Locator struct {
	// Pinned is an explicit endpoint; when non-empty Locate returns it
	// without enumerating.
	Pinned string

	enum Enumerator
}

// New creates a Locator. An empty pinned value selects auto-detection.
func New(pinned string, enum Enumerator) *Locator {
	if enum == nil {
		enum = SystemEnumerator{}
	}
	return &Locator{Pinned: pinned, enum: enum}
}

// Locate returns the endpoint of the first matching serial port in
// enumeration order, or ErrNotFound. First match wins; ambiguity between
// several plugged-in radios is resolved by enumeration order, which is
// stable on a static machine.
func (l *Locator) Locate(ctx context.Context) (string, error) {
	if l.Pinned != "" {
		return l.Pinned, nil
	}
	if err := ctx.Err(); err != nil {
		return "", err
	}

	ports, err := l.Scan(ctx)
	if err != nil {
		return "", err
	}
	for _, p := range ports {
		if p.Match {
			return p.Name, nil
		}
	}
	return "", ErrNotFound
}

// Scan enumerates all serial ports and annotates each with whether it
// matches a known radio signature. The result preserves enumeration order.
func (l *Locator) Scan(ctx context.Context) ([]Port, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	details, err := l.enum.DetailedPorts()
	if err != nil {
		return nil, fmt.Errorf("serial enumeration failed: %w", err)
	}

	ports := make([]Port, 0, len(details))
	for _, d := range details {
		ports = append(ports, Port{
			Name:    d.Name,
			IsUSB:   d.IsUSB,
			VID:     d.VID,
			PID:     d.PID,
			Product: d.Product,
			Match:   matches(d),
		})
	}
	return ports, nil
}

// matches applies the vendor-ID table first and the product-name substring
// heuristic as fallback.
func matches(d *enumerator.PortDetails) bool {
	if d.IsUSB {
		if _, ok := knownVendorIDs[strings.ToLower(d.VID)]; ok {
			return true
		}
	}
	product := strings.ToLower(d.Product)
	if product == "" {
		return false
	}
	for _, hint := range productHints {
		if strings.Contains(product, hint) {
			return true
		}
	}
	return false
}
