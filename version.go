package tap

// APIVersion is echoed on every response so clients can detect contract
// changes.
const APIVersion = "2025-08-12"
