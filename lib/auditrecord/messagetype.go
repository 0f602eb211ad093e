package auditrecord

import "fmt"

// MessageType is the 32-bit numeric tag carried by the type=... portion of
// every auditd(8) log line. It uses the same representation as the Linux
// Audit API.
type MessageType uint32

// messageNames maps a subset of the well-known kernel-side audit message
// types to their symbolic names, as published by the Linux Audit Project's
// audit_log.h / auparse name tables.
var messageNames = map[MessageType]string{
	1000: "GET",
	1001: "SET",
	1006: "LOGIN",
	1100: "USER_AUTH",
	1101: "USER_ACCT",
	1102: "USER_MGMT",
	1103: "CRED_ACQ",
	1104: "CRED_DISP",
	1105: "USER_START",
	1106: "USER_END",
	1107: "USER_AVC",
	1108: "USER_CHAUTHTOK",
	1109: "USER_ERR",
	1110: "CRED_REFR",
	1111: "USYS_CONFIG",
	1112: "USER_LOGIN",
	1113: "USER_LOGOUT",
	1114: "ADD_USER",
	1115: "DEL_USER",
	1116: "ADD_GROUP",
	1117: "DEL_GROUP",
	1123: "USER_CMD",
	1124: "USER_TTY",
	1127: "SYSTEM_BOOT",
	1128: "SYSTEM_SHUTDOWN",
	1300: "SYSCALL",
	1302: "PATH",
	1303: "IPC",
	1305: "CONFIG_CHANGE",
	1306: "SOCKADDR",
	1307: "CWD",
	1309: "EXECVE",
	1320: "EOE",
	1322: "CAPSET",
	1323: "MMAP",
	1326: "SECCOMP",
	1327: "PROCTITLE",
	1328: "FEATURE_CHANGE",
	1330: "KERN_MODULE",
	1400: "AVC",
	1401: "SELINUX_ERR",
	1403: "MAC_POLICY_LOAD",
	1404: "MAC_STATUS",
}

var messageNumbers = func() map[string]MessageType {
	m := make(map[string]MessageType, len(messageNames))
	for n, name := range messageNames {
		m[name] = n
	}
	return m
}()

// MessageTypeByName looks up a MessageType by its symbolic name.
func MessageTypeByName(name string) (MessageType, bool) {
	mt, ok := messageNumbers[name]
	return mt, ok
}

// String renders the symbolic name if known, otherwise "UNKNOWN[n]".
func (t MessageType) String() string {
	if name, ok := messageNames[t]; ok {
		return name
	}
	return fmt.Sprintf("UNKNOWN[%d]", uint32(t))
}

// MarshalJSON serializes the MessageType the same way String does.
func (t MessageType) MarshalJSON() ([]byte, error) {
	return []byte(`"` + t.String() + `"`), nil
}

// IsMultipart reports whether this message type is part of a multi-part
// event that the kernel emits as several records sharing one EventID. This
// mirrors auparse's grouping logic (auparse_is_multi_record as of audit
// userspace 3.0.6): 1006, 1300..1406, 1420..2000 and 2001..2100.
func (t MessageType) IsMultipart() bool {
	n := uint32(t)
	switch {
	case n == 1006:
		return true
	case n >= 1300 && n < 1406:
		return true
	case n >= 1420 && n < 2000:
		return true
	case n >= 2001 && n < 2100:
		return true
	default:
		return false
	}
}
