package hal

// Profile is a read-only snapshot of the host facts the provisioner cares
// about. It is produced once per run and passed by value afterwards.
//
// GPUPresent and VRAMKnown are independent signals: a GPU can be physically
// present while its driver tooling is unavailable, in which case VRAMKnown
// is false and VRAMGB must not be read as zero VRAM.
type Profile struct {
	// PrimaryIP is the address of the default outbound interface, or ""
	// when it could not be determined.
	PrimaryIP string `json:"primary_ip"`

	// RAMGB is total system memory in GiB. 0 means the value could not be
	// read and must be treated as below every threshold.
	RAMGB int `json:"ram_gb"`

	// DiskFreeGB is free space on the data filesystem in GiB. 0 means
	// unreadable and is treated as insufficient for any download.
	DiskFreeGB int `json:"disk_free_gb"`

	// GPUPresent reports whether an NVIDIA device was detected on the host,
	// regardless of whether its capabilities could be queried.
	GPUPresent bool `json:"gpu_present"`

	// GPUName is the product name reported by the driver, or "" when the
	// driver query tool is unavailable.
	GPUName string `json:"gpu_name,omitempty"`

	// VRAMGB is the device memory in GiB. Only meaningful when VRAMKnown.
	VRAMGB int `json:"vram_gb"`

	// VRAMKnown reports whether the driver query succeeded.
	VRAMKnown bool `json:"vram_known"`
}

// GPUUsable reports whether the GPU can drive tier selection: the device is
// present and its memory size is known.
func (p Profile) GPUUsable() bool {
	return p.GPUPresent && p.VRAMKnown
}
