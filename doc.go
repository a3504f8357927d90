// Package epollnet is the per-socket core of an edge-triggered epoll server.
//
// A Connection owns one non-blocking socket. It keeps the socket's epoll
// registration in line with its interest set, queues what the socket cannot
// take right away and tracks how many goroutines still hold it. The event loop
// itself, with its epoll_wait and dispatch, belongs to the caller: it drives
// SetStatus and HandleEvent, while any goroutine may Send.
package epollnet
