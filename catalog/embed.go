package catalogdata

import "embed"

// ModelFS contains the embedded default model requirement table.
//
//go:embed models.yaml
var ModelFS embed.FS
