// Package models - Class label sets for the supported model families.
package models

import (
	"fmt"

	"github.com/nvr-ai/go-detbench/models/model"
)

// OutputClass represents one detection label.
type OutputClass struct {
	// The integer index returned by the model.
	Index int
	// The human-readable label.
	Name string
}

// OutputClassSet ties a family to its full list of labels.
type OutputClassSet struct {
	// Class set identifier.
	Style model.Family
	// Classes that are supported and mappable.
	Classes []OutputClass
}

// Labels returns names indexed by class id. Ids the set skips map to "".
func (s OutputClassSet) Labels() []string {
	last := -1
	for _, c := range s.Classes {
		if c.Index > last {
			last = c.Index
		}
	}
	labels := make([]string, last+1)
	for _, c := range s.Classes {
		labels[c.Index] = c.Name
	}
	return labels
}

// Name returns the label for idx.
func (s OutputClassSet) Name(idx int) (string, error) {
	for _, c := range s.Classes {
		if c.Index == idx {
			return c.Name, nil
		}
	}
	return "", fmt.Errorf("index %d not found in style %q", idx, s.Style)
}

// YOLOClasses is the 80 COCO classes (no background).
// YOLO models index directly into this zero-based list.
var YOLOClasses = OutputClassSet{
	Style: model.ModelFamilyYOLO,
	Classes: []OutputClass{
		{0, "person"},
		{1, "bicycle"},
		{2, "car"},
		{3, "motorcycle"},
		{4, "airplane"},
		{5, "bus"},
		{6, "train"},
		{7, "truck"},
		{8, "boat"},
		{9, "traffic light"},
		{10, "fire hydrant"},
		{11, "stop sign"},
		{12, "parking meter"},
		{13, "bench"},
		{14, "bird"},
		{15, "cat"},
		{16, "dog"},
		{17, "horse"},
		{18, "sheep"},
		{19, "cow"},
		{20, "elephant"},
		{21, "bear"},
		{22, "zebra"},
		{23, "giraffe"},
		{24, "backpack"},
		{25, "umbrella"},
		{26, "handbag"},
		{27, "tie"},
		{28, "suitcase"},
		{29, "frisbee"},
		{30, "skis"},
		{31, "snowboard"},
		{32, "sports ball"},
		{33, "kite"},
		{34, "baseball bat"},
		{35, "baseball glove"},
		{36, "skateboard"},
		{37, "surfboard"},
		{38, "tennis racket"},
		{39, "bottle"},
		{40, "wine glass"},
		{41, "cup"},
		{42, "fork"},
		{43, "knife"},
		{44, "spoon"},
		{45, "bowl"},
		{46, "banana"},
		{47, "apple"},
		{48, "sandwich"},
		{49, "orange"},
		{50, "broccoli"},
		{51, "carrot"},
		{52, "hot dog"},
		{53, "pizza"},
		{54, "donut"},
		{55, "cake"},
		{56, "chair"},
		{57, "couch"},
		{58, "potted plant"},
		{59, "bed"},
		{60, "dining table"},
		{61, "toilet"},
		{62, "tv"},
		{63, "laptop"},
		{64, "mouse"},
		{65, "remote"},
		{66, "keyboard"},
		{67, "cell phone"},
		{68, "microwave"},
		{69, "oven"},
		{70, "toaster"},
		{71, "sink"},
		{72, "refrigerator"},
		{73, "book"},
		{74, "clock"},
		{75, "vase"},
		{76, "scissors"},
		{77, "teddy bear"},
		{78, "hair drier"},
		{79, "toothbrush"},
	},
}

// COCOClasses mirrors TensorFlow's COCO labelmap: 80 classes spread over ids
// 1..90. SSD models trained with the TF Object Detection API emit these ids.
var COCOClasses = OutputClassSet{
	Style: model.ModelFamilyCOCO,
	Classes: []OutputClass{
		{1, "person"},
		{2, "bicycle"},
		{3, "car"},
		{4, "motorcycle"},
		{5, "airplane"},
		{6, "bus"},
		{7, "train"},
		{8, "truck"},
		{9, "boat"},
		{10, "traffic light"},
		{11, "fire hydrant"},
		{13, "stop sign"},
		{14, "parking meter"},
		{15, "bench"},
		{16, "bird"},
		{17, "cat"},
		{18, "dog"},
		{19, "horse"},
		{20, "sheep"},
		{21, "cow"},
		{22, "elephant"},
		{23, "bear"},
		{24, "zebra"},
		{25, "giraffe"},
		{27, "backpack"},
		{28, "umbrella"},
		{31, "handbag"},
		{32, "tie"},
		{33, "suitcase"},
		{34, "frisbee"},
		{35, "skis"},
		{36, "snowboard"},
		{37, "sports ball"},
		{38, "kite"},
		{39, "baseball bat"},
		{40, "baseball glove"},
		{41, "skateboard"},
		{42, "surfboard"},
		{43, "tennis racket"},
		{44, "bottle"},
		{46, "wine glass"},
		{47, "cup"},
		{48, "fork"},
		{49, "knife"},
		{50, "spoon"},
		{51, "bowl"},
		{52, "banana"},
		{53, "apple"},
		{54, "sandwich"},
		{55, "orange"},
		{56, "broccoli"},
		{57, "carrot"},
		{58, "hot dog"},
		{59, "pizza"},
		{60, "donut"},
		{61, "cake"},
		{62, "chair"},
		{63, "couch"},
		{64, "potted plant"},
		{65, "bed"},
		{67, "dining table"},
		{70, "toilet"},
		{72, "tv"},
		{73, "laptop"},
		{74, "mouse"},
		{75, "remote"},
		{76, "keyboard"},
		{77, "cell phone"},
		{78, "microwave"},
		{79, "oven"},
		{80, "toaster"},
		{81, "sink"},
		{82, "refrigerator"},
		{84, "book"},
		{85, "clock"},
		{86, "vase"},
		{87, "scissors"},
		{88, "teddy bear"},
		{89, "hair drier"},
		{90, "toothbrush"},
	},
}

// ClassSet returns the label set of a family.
func ClassSet(family model.Family) (OutputClassSet, error) {
	switch family {
	case model.ModelFamilyYOLO:
		return YOLOClasses, nil
	case model.ModelFamilyCOCO:
		return COCOClasses, nil
	default:
		return OutputClassSet{}, fmt.Errorf("style %q not registered", family)
	}
}
