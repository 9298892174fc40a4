package kvdb

const (
	// CrawlsBucket holds one crawl run record per scope, keyed by scope name.
	CrawlsBucket = "crawls"
	// AccessBucket holds access counters per path for the access-priority ranking model.
	AccessBucket = "access"
	// IconsBucket maps icon cache keys to the icon container they were decoded from.
	IconsBucket = "icons"
)

var buckets = []string{CrawlsBucket, AccessBucket, IconsBucket}

type DB interface {
	Set(bucket string, key string, value string) error
	Get(bucket string, key string) (string, error)
	Delete(bucket string, key string) error
	GetAllKeys(bucket string) ([]string, error)
	Modify(bucket string, key string, modify func(current string, found bool) (string, error)) error
	Close() error
}
