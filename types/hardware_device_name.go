package types

// HardwareDeviceName selects a specific device of the given type
// (for example "/dev/dri/renderD128" for VAAPI or "0" for CUDA).
// An empty name means the backend's default device.
type HardwareDeviceName string
