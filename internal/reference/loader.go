package reference

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"
)

// LoadEnumCatalog reads every *.yaml / *.yml enum directory in dir.
func LoadEnumCatalog(dir string) (Catalog, error) {
	result := make(Catalog)
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, err
	}
	for _, e := range entries {
		name := e.Name()
		if e.IsDir() || !(strings.HasSuffix(name, ".yaml") || strings.HasSuffix(name, ".yml")) {
			continue
		}
		data, err := os.ReadFile(filepath.Join(dir, name))
		if err != nil {
			return nil, err
		}
		var enumDir EnumDirectory
		if err := yaml.Unmarshal(data, &enumDir); err != nil {
			return nil, fmt.Errorf("%s: %w", name, err)
		}
		// the file name names the directory unless it says otherwise
		enumName := enumDir.Name
		if enumName == "" {
			enumName = strings.TrimSuffix(name, filepath.Ext(name))
		}
		if _, dup := result[enumName]; dup {
			return nil, fmt.Errorf("%s: duplicate enum directory %q", name, enumName)
		}
		enumDir.Name = enumName
		result[enumName] = enumDir
	}
	return result, nil
}
