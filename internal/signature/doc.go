// Package signature turns per-frame feature matrices into fixed-length signature vectors.
//
// A signature is assembled in the order of the [Kind] enumeration, optionally normalized
// against its own statistics and optionally shortened by truncating its orthonormal DCT-II.
// Its length depends only on the configuration, never on the audio.
package signature
