// Package apdu implements the L2 layer: the GET/SET/ACTION request and
// response families (including their block-transfer and WithList
// variants), selective-access encoding, and the minimal ASN.1 BER codec
// for the association messages (AARQ/AARE/RLRQ/RLRE). It builds on axdr
// for value encoding and on base for the shared tag/enum vocabulary.
package apdu
