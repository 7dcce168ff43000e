// Package locator discovers the serial endpoint of the mesh radio.
//
// Discovery is a pure scan: it enumerates the system's serial ports and
// matches them against known USB bridge signatures without opening anything.
// A pinned endpoint from configuration bypasses enumeration entirely.
package locator
