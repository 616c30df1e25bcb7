package labels

// Default tag keys. Both can be overridden in the config file.
const (
	LBackup    = "LambderBackup"
	LReplicate = "LambderReplicate"

	// TagKeyFilter is the EC2 filter name matching resources that carry a tag key, any value.
	TagKeyFilter = "tag-key"
)
