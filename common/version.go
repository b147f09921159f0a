package common

// Version is the odinctl build version, surfaced by the --version flag and
// recorded in every session log's header line.
const Version = "0.1.0"
