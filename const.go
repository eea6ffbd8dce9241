package prollipop

// MaxLevel bounds how tall a tree may grow. The source this library is
// ported from used inconsistent bounds (100, 1000, 10000) across its
// history; 16 is a conservative ceiling — exceeding it during mutation
// indicates a bug or adversarial input, not legitimate tree growth.
const MaxLevel = 16

// DefaultAverage is the expected bucket size used by CreateEmptyTree when
// no WithAverage option is supplied.
const DefaultAverage = 32
