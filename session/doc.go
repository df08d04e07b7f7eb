// Package session implements the L4 session engine: the association state
// machine (AARQ/AARE, RLRQ/RLRE), the GET/SET/ACTION request/response
// driver with automatic block-transfer reassembly and chunking, bulk
// WithList chunking, invoke-id tracking, and transparent ciphering via the
// cipher package. It is the only layer a typical caller imports directly;
// axdr, apdu and cipher are its building blocks.
//
// Adapted from the donor's dlmsal package, generalized to drive the apdu/
// axdr/cipher packages this module builds instead of the donor's own
// monolithic encode/decode helpers.
package session
