package project

// Project is the top-level Entry project document.
type Project struct {
	Name                string     `json:"name"`
	Objects             []Object   `json:"objects"`
	Scenes              []Scene    `json:"scenes"`
	Variables           []Variable `json:"variables"`
	Messages            []Message  `json:"messages"`
	Functions           []any      `json:"functions"`
	Tables              []any      `json:"tables"`
	Speed               int        `json:"speed"`
	Interface           Interface  `json:"interface"`
	ExpansionBlocks     []any      `json:"expansionBlocks"`
	AIUtilizeBlocks     []any      `json:"aiUtilizeBlocks"`
	HardwareLiteBlocks  []any      `json:"hardwareLiteBlocks"`
	ExternalModules     []any      `json:"externalModules"`
	ExternalModulesLite []any      `json:"externalModulesLite"`
	IsPracticalCourse   bool       `json:"isPracticalCourse"`
}

// Scene is an Entry scene.
type Scene struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

// Message is a broadcast signal.
type Message struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

// Interface holds editor layout hints.
type Interface struct {
	MenuWidth   int    `json:"menuWidth"`
	CanvasWidth int    `json:"canvasWidth"`
	Object      string `json:"object"`
}

// Variable is a project or object scoped variable. Object is nil for
// project-wide variables.
type Variable struct {
	Name         string  `json:"name"`
	ID           string  `json:"id"`
	Visible      bool    `json:"visible"`
	Value        float64 `json:"value"`
	VariableType string  `json:"variableType"`
	IsCloud      bool    `json:"isCloud"`
	IsRealTime   bool    `json:"isRealTime"`
	CloudDate    bool    `json:"cloudDate"`
	Object       *string `json:"object"`
	X            float64 `json:"x"`
	Y            float64 `json:"y"`
}

// Object is a sprite. Script holds the serialized script graph.
type Object struct {
	ID                string `json:"id"`
	Name              string `json:"name"`
	Script            string `json:"script"`
	ObjectType        string `json:"objectType"`
	RotateMethod      string `json:"rotateMethod"`
	Scene             string `json:"scene"`
	Sprite            Sprite `json:"sprite"`
	SelectedPictureID string `json:"selectedPictureId"`
	Lock              bool   `json:"lock"`
	Entity            Entity `json:"entity"`
}

// Sprite lists an object's costumes and sounds.
type Sprite struct {
	Pictures []Picture `json:"pictures"`
	Sounds   []Sound   `json:"sounds"`
}

// Picture references an image asset in the archive.
type Picture struct {
	ID        string    `json:"id"`
	Dimension Dimension `json:"dimension"`
	FileURL   string    `json:"fileurl"`
	Filename  string    `json:"filename"`
	Name      string    `json:"name"`
	ImageType string    `json:"imageType"`
}

// Dimension is a picture's pixel size.
type Dimension struct {
	Width  int `json:"width"`
	Height int `json:"height"`
}

// Sound references an audio asset in the archive.
type Sound struct {
	Duration float64 `json:"duration"`
	Ext      string  `json:"ext"`
	ID       string  `json:"id"`
	FileURL  string  `json:"fileurl"`
	Filename string  `json:"filename"`
	Name     string  `json:"name"`
}

// Entity is an object's initial stage state.
type Entity struct {
	X         float64 `json:"x"`
	Y         float64 `json:"y"`
	RegX      float64 `json:"regX"`
	RegY      float64 `json:"regY"`
	ScaleX    float64 `json:"scaleX"`
	ScaleY    float64 `json:"scaleY"`
	Rotation  float64 `json:"rotation"`
	Direction float64 `json:"direction"`
	Width     int     `json:"width"`
	Height    int     `json:"height"`
	Font      string  `json:"font"`
	Visible   bool    `json:"visible"`
}

// Block is one script node. Params holds nested Blocks, strings, numbers
// or nil in the positions the runtime expects.
type Block struct {
	ID         string    `json:"id"`
	X          float64   `json:"x"`
	Y          float64   `json:"y"`
	Type       string    `json:"type"`
	Params     []any     `json:"params"`
	Statements [][]Block `json:"statements"`
	Movable    *bool     `json:"movable"`
	Deletable  int       `json:"deletable"`
	Emphasized bool      `json:"emphasized"`
	ReadOnly   *bool     `json:"readOnly"`
	Copyable   bool      `json:"copyable"`
	Assemble   bool      `json:"assemble"`
	Extensions []any     `json:"extensions"`
}
