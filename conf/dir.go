package conf

import (
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"
)

// LoadDir 把目录下每个 *.yaml / *.yml 文件读取为一张卡片，卡片名为去掉扩展名的文件名。
func LoadDir(dir string) (map[string]CardOptions, error) {
	out := make(map[string]CardOptions)
	err := filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return nil
		}
		lower := strings.ToLower(d.Name())
		if !strings.HasSuffix(lower, ".yaml") && !strings.HasSuffix(lower, ".yml") {
			return nil
		}
		b, e := os.ReadFile(path)
		if e != nil {
			return e
		}
		var c CardOptions
		if e = yaml.Unmarshal([]byte(os.ExpandEnv(string(b))), &c); e != nil {
			return fmt.Errorf("%s: %w", d.Name(), e)
		}
		name := strings.TrimSuffix(d.Name(), filepath.Ext(d.Name()))
		if _, dup := out[name]; dup {
			return fmt.Errorf("duplicate card %q in %s", name, dir)
		}
		out[name] = c
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// MergeCards 把目录中的卡片并入 Options；与配置文件中的同名卡片冲突时报错。
func MergeCards(o *Options, cards map[string]CardOptions) error {
	if o.Cards == nil {
		o.Cards = make(map[string]CardOptions, len(cards))
	}
	for name, c := range cards {
		if _, dup := o.Cards[name]; dup {
			return fmt.Errorf("card %q defined twice", name)
		}
		o.Cards[name] = c
	}
	return Validate(*o)
}
