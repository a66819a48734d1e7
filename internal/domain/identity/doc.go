// Package identity resolves who is on the other end of an extension socket.
//
// Nothing the client sends is trusted for this. At accept time the peer's
// process id is read from the socket's kernel credentials, the pid is mapped
// to its executable path, and the path is matched against a catalog of
// extension manifests loaded from disk:
//
//	# /etc/notchkit/extensions.d/weather.yaml
//	bundle_id: com.example.weather
//	display_name: Weather
//	executables:
//	  - /opt/weather/bin/weather-helper
//	  - /home/*/.local/bin/weather-helper
//	digest: 4f1c...   # optional blake2b-256 of the executable, hex
//
// TOML manifests with the same keys are accepted too. A path matched by more
// than one bundle is rejected as ambiguous rather than guessed.
package identity
