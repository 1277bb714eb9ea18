// Package uart talks to Trinamic drivers over a single-wire UART bus.
package uart

// The TMC2209 has a single UART pin, so transmit and receive share one wire.
// On boards with an external bus buffer, a GPIO pin selects whether the
// buffer drives the wire (transmit) or listens (receive). Everything the
// master sends is echoed back on its receive line.
//
// A read transaction therefore goes like this:
//
//   flush RX -> buffer TX -> send request -> turnaround -> buffer RX
//            -> reply delay -> scan for reply header -> capture 5 bytes
//            -> flush RX
//
// The scan keeps a rolling 24-bit window of received bytes and waits for
// sync, 0xff, register: the start of the genuine reply. The request echo
// and any noise are discarded on the way. Both the scan and the capture are
// bounded by deadlines, and the whole transaction is retried by Client when
// the captured frame fails checksum verification.
//
// Transceivers have no internal locking. Only one transaction may be in
// flight on a bus; callers sharing a bus must serialize access.
