package asrt

/*
#cgo LDFLAGS: -lsrt
#include <srt/srt.h>
*/
import "C"

// SRT_SOCKOPT symbols, one constant per name the registry in
// internal/optreg knows about. Kept as a single flat block the way the
// teacher's srtsocketoptions.go declares its SRTO_* constants, so adding an
// option to the registry is a two-line change: one name here, one entry in
// internal/optreg.
const (
	sockoptMSS                 = C.SRTO_MSS
	sockoptSNDBUF               = C.SRTO_SNDBUF
	sockoptRCVBUF               = C.SRTO_RCVBUF
	sockoptUDPSNDBUF             = C.SRTO_UDP_SNDBUF
	sockoptUDPRCVBUF             = C.SRTO_UDP_RCVBUF
	sockoptIPTTL                = C.SRTO_IPTTL
	sockoptIPTOS                = C.SRTO_IPTOS
	sockoptIPV6ONLY              = C.SRTO_IPV6ONLY
	sockoptREUSEADDR             = C.SRTO_REUSEADDR
	sockoptTRANSTYPE             = C.SRTO_TRANSTYPE
	sockoptFC                   = C.SRTO_FC
	sockoptSENDER                = C.SRTO_SENDER
	sockoptMESSAGEAPI            = C.SRTO_MESSAGEAPI
	sockoptTSBPDMODE             = C.SRTO_TSBPDMODE
	sockoptTLPKTDROP             = C.SRTO_TLPKTDROP
	sockoptNAKREPORT             = C.SRTO_NAKREPORT
	sockoptLATENCY               = C.SRTO_LATENCY
	sockoptRCVLATENCY            = C.SRTO_RCVLATENCY
	sockoptPEERLATENCY           = C.SRTO_PEERLATENCY
	sockoptCONNTIMEO             = C.SRTO_CONNTIMEO
	sockoptPEERIDLETIMEO         = C.SRTO_PEERIDLETIMEO
	sockoptPBKEYLEN              = C.SRTO_PBKEYLEN
	sockoptPASSPHRASE            = C.SRTO_PASSPHRASE
	sockoptKMREFRESHRATE         = C.SRTO_KMREFRESHRATE
	sockoptKMPREANNOUNCE         = C.SRTO_KMPREANNOUNCE
	sockoptENFORCEDENCRYPTION    = C.SRTO_ENFORCEDENCRYPTION
	sockoptMINVERSION            = C.SRTO_MINVERSION
	sockoptSTREAMID              = C.SRTO_STREAMID
	sockoptCONGESTION            = C.SRTO_CONGESTION
	sockoptPAYLOADSIZE           = C.SRTO_PAYLOADSIZE
	sockoptPACKETFILTER          = C.SRTO_PACKETFILTER
	sockoptRETRANSMITALGO        = C.SRTO_RETRANSMITALGO
	sockoptMAXBW                 = C.SRTO_MAXBW
	sockoptINPUTBW                = C.SRTO_INPUTBW
	sockoptMININPUTBW             = C.SRTO_MININPUTBW
	sockoptOHEADBW                = C.SRTO_OHEADBW
	sockoptSNDDROPDELAY           = C.SRTO_SNDDROPDELAY
	sockoptDRIFTTRACER            = C.SRTO_DRIFTTRACER
	sockoptLOSSMAXTTL             = C.SRTO_LOSSMAXTTL
	sockoptRCVSYN                 = C.SRTO_RCVSYN
	sockoptSNDSYN                 = C.SRTO_SNDSYN
	sockoptRCVTIMEO               = C.SRTO_RCVTIMEO
	sockoptSNDTIMEO               = C.SRTO_SNDTIMEO
	sockoptLINGER                 = C.SRTO_LINGER
)

// sockoptSymbols pairs each registry name with its real SRT numeric
// symbol. optionset.go looks names up here before calling srt_setsockflag.
var sockoptSymbols = map[string]C.SRT_SOCKOPT{
	"mss":                 sockoptMSS,
	"sndbuf":              sockoptSNDBUF,
	"rcvbuf":              sockoptRCVBUF,
	"udp_sndbuf":          sockoptUDPSNDBUF,
	"udp_rcvbuf":          sockoptUDPRCVBUF,
	"ipttl":               sockoptIPTTL,
	"iptos":               sockoptIPTOS,
	"ipv6only":            sockoptIPV6ONLY,
	"reuseaddr":           sockoptREUSEADDR,
	"transtype":           sockoptTRANSTYPE,
	"fc":                  sockoptFC,
	"sender":              sockoptSENDER,
	"messageapi":          sockoptMESSAGEAPI,
	"tsbpdmode":           sockoptTSBPDMODE,
	"tlpktdrop":           sockoptTLPKTDROP,
	"nakreport":           sockoptNAKREPORT,
	"latency":             sockoptLATENCY,
	"rcvlatency":          sockoptRCVLATENCY,
	"peerlatency":         sockoptPEERLATENCY,
	"conntimeo":           sockoptCONNTIMEO,
	"peeridletimeo":       sockoptPEERIDLETIMEO,
	"pbkeylen":            sockoptPBKEYLEN,
	"passphrase":          sockoptPASSPHRASE,
	"kmrefreshrate":       sockoptKMREFRESHRATE,
	"kmpreannounce":       sockoptKMPREANNOUNCE,
	"enforcedencryption":  sockoptENFORCEDENCRYPTION,
	"minversion":          sockoptMINVERSION,
	"streamid":            sockoptSTREAMID,
	"congestion":          sockoptCONGESTION,
	"payloadsize":         sockoptPAYLOADSIZE,
	"packetfilter":        sockoptPACKETFILTER,
	"retransmitalgo":      sockoptRETRANSMITALGO,
	"maxbw":               sockoptMAXBW,
	"inputbw":             sockoptINPUTBW,
	"mininputbw":          sockoptMININPUTBW,
	"oheadbw":             sockoptOHEADBW,
	"snddropdelay":        sockoptSNDDROPDELAY,
	"drifttracer":         sockoptDRIFTTRACER,
	"lossmaxttl":          sockoptLOSSMAXTTL,
	"rcvsyn":              sockoptRCVSYN,
	"sndsyn":              sockoptSNDSYN,
	"rcvtimeo":            sockoptRCVTIMEO,
	"sndtimeo":            sockoptSNDTIMEO,
}
