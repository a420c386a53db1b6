// Package imaging drives the camera of the hardware service.
//
// A Controller owns one Backend and moves it through the acquisition states
// Free, ReadyForAcquisition, Streaming, Busy and Terminated. Every transition
// is a compare-and-swap on an atomic state, so concurrent requests never both
// acquire: the loser gets domain.ErrCameraBusy.
//
// The Controller also implements ports.Imaging, which lets an orchestrator in
// the same process use it directly instead of going through HTTP.
package imaging
