package index

import (
	"net/url"
	"os"

	"go-modelcart/internal/models"

	"github.com/blevesearch/bleve/v2"
	log "github.com/sirupsen/logrus"
)

const defaultIndexPath = "modelcart.bleve"

// Item is one fetched file in the search index. Fields are searchable by
// their lowercase JSON tag names (e.g. '+category:lora' or '+host:civitai.com').
type Item struct {
	URL       string `json:"url"`
	Host      string `json:"host,omitempty"`
	Category  string `json:"category"`
	Filename  string `json:"filename"`
	Folder    string `json:"folder,omitempty"`
	SizeBytes int64  `json:"sizeBytes,omitempty"`
	Checksum  string `json:"checksum,omitempty"`
	Status    string `json:"status"`
}

// FromHistoryEntry converts a persisted fetch record into an index document.
func FromHistoryEntry(entry models.HistoryEntry) Item {
	host := ""
	if u, err := url.Parse(entry.URL); err == nil {
		host = u.Hostname()
	}
	return Item{
		URL:       entry.URL,
		Host:      host,
		Category:  string(entry.Category),
		Filename:  entry.Filename,
		Folder:    entry.Folder,
		SizeBytes: entry.SizeBytes,
		Checksum:  entry.BLAKE3,
		Status:    entry.Status,
	}
}

// OpenOrCreateIndex opens an existing Bleve index or creates a new one if it
// doesn't exist.
func OpenOrCreateIndex(indexPath string) (bleve.Index, error) {
	if indexPath == "" {
		indexPath = defaultIndexPath
	}

	idx, err := bleve.Open(indexPath)
	if err == bleve.ErrorIndexPathDoesNotExist {
		log.Infof("Creating new index at: %s", indexPath)
		mapping := bleve.NewIndexMapping()
		idx, err = bleve.New(indexPath, mapping)
		if err != nil {
			return nil, err
		}
	} else if err != nil {
		return nil, err
	} else {
		log.Debugf("Opened existing index at: %s", indexPath)
	}
	return idx, nil
}

// IndexItem adds or updates an item, keyed by source URL.
func IndexItem(idx bleve.Index, item Item) error {
	return idx.Index(item.URL, item)
}

// SearchIndex performs a query-string search against the index.
func SearchIndex(idx bleve.Index, query string) (*bleve.SearchResult, error) {
	searchQuery := bleve.NewQueryStringQuery(query)
	searchRequest := bleve.NewSearchRequest(searchQuery)
	searchRequest.Fields = []string{"*"}
	return idx.Search(searchRequest)
}

// DeleteIndex removes the index directory. Use with caution!
func DeleteIndex(indexPath string) error {
	if indexPath == "" {
		indexPath = defaultIndexPath
	}
	log.Infof("Deleting index at: %s", indexPath)
	return os.RemoveAll(indexPath)
}
