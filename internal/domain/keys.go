package domain

// KeyPrefix is the default namespace prefix for all keys written to the store.
// Overridable via storage.key_prefix in the config.
const KeyPrefix = "profilex:"
