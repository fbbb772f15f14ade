package types

// Version is the canonical project version.
// The sender, receiver and wire codec share this version
// per the lockstep versioning policy.
const Version = "0.3.0"

// WireVersion is recorded in ledger entries and notifications so that
// downstream consumers can tell which framing rules produced a message.
const WireVersion = Version
