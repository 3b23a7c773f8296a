// Package hotplug reports whether the display device is usable without
// flickering during connector attach and detach.
//
// A Monitor probes the backend about once a second and feeds a Tracker,
// which only moves the reported availability after a changed probe has
// held for the debounce threshold. A Reporter publishes the debounced
// status to MQTT as a retained message.
package hotplug
