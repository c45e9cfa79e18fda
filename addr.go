package asrt

/*
#cgo LDFLAGS: -lsrt
#include <srt/srt.h>
#include <netinet/in.h>
#include <arpa/inet.h>
#include <string.h>
*/
import "C"

import (
	"fmt"
	"net"
	"unsafe"
)

// cSockaddr is a small owned buffer holding either a sockaddr_in or a
// sockaddr_in6, sized generously enough for srt_getsockname/getpeername's
// "give me a buffer, tell me how much you used" protocol.
type cSockaddr struct {
	storage C.struct_sockaddr_storage
	length  C.int
}

func newSockaddr(ip net.IP, port int) (*cSockaddr, error) {
	sa := &cSockaddr{}
	if v4 := ip.To4(); v4 != nil {
		in := (*C.struct_sockaddr_in)(unsafe.Pointer(&sa.storage))
		in.sin_family = C.AF_INET
		in.sin_port = C.htons(C.uint16_t(port))
		copy((*[4]byte)(unsafe.Pointer(&in.sin_addr))[:], v4)
		sa.length = C.int(unsafe.Sizeof(*in))
		return sa, nil
	}
	if v6 := ip.To16(); v6 != nil {
		in6 := (*C.struct_sockaddr_in6)(unsafe.Pointer(&sa.storage))
		in6.sin6_family = C.AF_INET6
		in6.sin6_port = C.htons(C.uint16_t(port))
		copy((*[16]byte)(unsafe.Pointer(&in6.sin6_addr))[:], v6)
		sa.length = C.int(unsafe.Sizeof(*in6))
		return sa, nil
	}
	return nil, fmt.Errorf("address %v is neither IPv4 nor IPv6", ip)
}

func (sa *cSockaddr) ptr() *C.struct_sockaddr {
	return (*C.struct_sockaddr)(unsafe.Pointer(&sa.storage))
}

func (sa *cSockaddr) toNetAddr() (net.IP, int, error) {
	family := (*C.sa_family_t)(unsafe.Pointer(&sa.storage))
	switch *family {
	case C.AF_INET:
		in := (*C.struct_sockaddr_in)(unsafe.Pointer(&sa.storage))
		b := (*[4]byte)(unsafe.Pointer(&in.sin_addr))[:]
		ip := make(net.IP, 4)
		copy(ip, b)
		return ip, int(C.ntohs(in.sin_port)), nil
	case C.AF_INET6:
		in6 := (*C.struct_sockaddr_in6)(unsafe.Pointer(&sa.storage))
		b := (*[16]byte)(unsafe.Pointer(&in6.sin6_addr))[:]
		ip := make(net.IP, 16)
		copy(ip, b)
		return ip, int(C.ntohs(in6.sin6_port)), nil
	default:
		return nil, 0, fmt.Errorf("unsupported address family %d", *family)
	}
}

// readSockaddr decodes a native sockaddr the caller does not own (e.g. the
// peeraddr handed to a listener admission callback) without copying it into
// a cSockaddr first.
func readSockaddr(ptr *C.struct_sockaddr) (net.IP, int, error) {
	if ptr == nil {
		return nil, 0, fmt.Errorf("nil sockaddr")
	}
	family := (*C.sa_family_t)(unsafe.Pointer(ptr))
	switch *family {
	case C.AF_INET:
		in := (*C.struct_sockaddr_in)(unsafe.Pointer(ptr))
		b := (*[4]byte)(unsafe.Pointer(&in.sin_addr))[:]
		ip := make(net.IP, 4)
		copy(ip, b)
		return ip, int(C.ntohs(in.sin_port)), nil
	case C.AF_INET6:
		in6 := (*C.struct_sockaddr_in6)(unsafe.Pointer(ptr))
		b := (*[16]byte)(unsafe.Pointer(&in6.sin6_addr))[:]
		ip := make(net.IP, 16)
		copy(ip, b)
		return ip, int(C.ntohs(in6.sin6_port)), nil
	default:
		return nil, 0, fmt.Errorf("unsupported address family %d", *family)
	}
}

// resolveAddrs resolves host into candidate IPs, honoring spec.md §6's
// "dotted IPv4 literal, bracketed IPv6 literal, or DNS name" host grammar.
// DNS names may resolve to several addresses; AsyncConnect tries each in
// order (first-success policy, spec.md §4.6). port is not used here.
func resolveAddrs(host string, port int) ([]net.IP, error) {
	if len(host) > 1 && host[0] == '[' && host[len(host)-1] == ']' {
		host = host[1 : len(host)-1]
	}
	if ip := net.ParseIP(host); ip != nil {
		return []net.IP{ip}, nil
	}
	ips, err := net.LookupIP(host)
	if err != nil {
		return nil, err
	}
	return ips, nil
}
