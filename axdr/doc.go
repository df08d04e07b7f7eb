// Package axdr implements A-XDR encoding and decoding: the tagged Data
// value universe, OBIS identifiers, temporal types, units/scalers, and the
// variable-length integer coding every higher layer builds its APDUs on.
package axdr
