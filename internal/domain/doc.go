// Package domain models the two wind sensor streams reconciled by this service:
// a ground anemometer log and an onboard drone telemetry export.
//
// # Anemometer Protocol
//
// One reading per line, whitespace separated:
//
//	23:11:01:17:39:22.316 SN150 SN151 U -00.90 V -00.21 T 19.78 Battery% 100 BATTV 4.16 BATTC 0.000
//
//	token 0        timestamp, colon dialect (see below)
//	next 0..2      optional sensor tags "SN<digits>"
//	remainder      KEY VALUE pairs; recognized keys are U, V, T, Battery%, BATTV, BATTC
//
// U and V are the orthogonal wind components (U east/west, V north/south).
// Unknown keys are ignored. A value that does not parse as a finite number is
// kept as absent rather than zero. When a key repeats, the last value wins.
//
// # Timestamp Dialects
//
// Colon dialect (anemometer):
//
//	YY:MM:DD:HH:MM:SS[.mmm]  →  already UTC, year 2000+YY,
//	fraction truncated or zero-padded to milliseconds.
//
// Local wall clock (drone export):
//
//	"2023-11-01" + "10:39:22.316 AM"  →  interpreted in a named IANA zone
//	using that zone's offset rules for the date, then converted to UTC.
//	Local times skipped or repeated by a DST transition are rejected
//	(see [ErrClockAmbiguity]) instead of being guessed.
//
// Canonical form is UTC with millisecond precision, serialized as
// "2006-01-02T15:04:05.000Z". [NormalizeCanonical] is idempotent over it.
//
// # Wind Vector Convention
//
// Direction is a compass bearing computed as atan2(u, v): u is the sine
// argument and v the cosine argument, so 0° lies on the positive v axis.
// Speed/heading pairs decompose with the same convention:
//
//	u = speed·sin(heading)   v = speed·cos(heading)
//
// True wind subtracts the platform velocity vector from the apparent wind
// vector. Without a platform heading the apparent wind passes through
// unchanged.
//
// # Alignment
//
// Drone rows are the reference series and anemometer readings the ground
// series. Each reference element is paired with the nearest unclaimed ground
// element within the tolerance (default 300s); equal distances go to the
// earlier ground element. Reference elements without a match are dropped and
// counted, never null-padded.
package domain
