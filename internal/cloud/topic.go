package cloud

import "strings"

// TopicName builds an upstream topic: prefix + device + "/" + resourceType,
// plus "-" + item when item is set, all lower-cased. The prefix always ends
// in exactly one "/".
func TopicName(prefix, device, resourceType, item string) string {
	var b strings.Builder

	prefix = strings.TrimRight(prefix, "/") + "/"
	b.WriteString(prefix)
	b.WriteString(strings.Trim(device, "/"))

	if resourceType = strings.Trim(resourceType, "/"); resourceType != "" {
		b.WriteByte('/')
		b.WriteString(resourceType)
	}
	if item = strings.TrimSpace(item); item != "" {
		b.WriteByte('-')
		b.WriteString(item)
	}

	return strings.ToLower(b.String())
}
