package types

// DictionaryItem is a backend-specific option, for example
// a libav hardware device option.
type DictionaryItem struct {
	Key   string `yaml:"key"`
	Value string `yaml:"value"`
}

type DictionaryItems []DictionaryItem

// Deduplicate keeps only the last value of every key, ordered by the
// position of that last value.
func (s DictionaryItems) Deduplicate() DictionaryItems {
	last := make(map[string]int, len(s))
	for idx, item := range s {
		last[item.Key] = idx
	}
	result := make(DictionaryItems, 0, len(last))
	for idx, item := range s {
		if last[item.Key] == idx {
			result = append(result, item)
		}
	}
	return result
}
