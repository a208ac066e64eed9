package native

import "github.com/wippyai/qsp-runtime/state"

// Handoff is how game and save data cross into the guest.
type Handoff uint8

const (
	// HandoffBytes copies the whole file into guest memory.
	HandoffBytes Handoff = iota
	// HandoffNamedBytes is HandoffBytes plus the game file name.
	HandoffNamedBytes
	// HandoffDescriptor registers the stream in a descriptor table; the guest
	// pulls or pushes bytes through fd_read and fd_write.
	HandoffDescriptor
)

// RefreshStyle is the signature of the guest's refresh callback.
type RefreshStyle uint8

const (
	// RefreshPlain: on_refresh(forced i32).
	RefreshPlain RefreshStyle = iota
	// RefreshGated: on_refresh(forced i32, new_desc i32); calls that are
	// neither forced nor carry a new description are dropped.
	RefreshGated
)

// MenuStyle is how menus are delivered.
type MenuStyle uint8

const (
	// MenuArray: on_show_menu(items_ptr, count) with 16-byte item records.
	MenuArray MenuStyle = iota
	// MenuIncremental: on_delete_menu, on_add_menu_item(text, image) per
	// item, then on_show_menu().
	MenuIncremental
)

// VarStyle is the signature of the numeric variable read.
type VarStyle uint8

const (
	// VarPlain: get(name_ptr, name_len, index) -> i64; every name is found.
	VarPlain VarStyle = iota
	// VarFound: get(name_ptr, name_len, index, out_ptr) -> i32 found, with
	// the value written as i64 at out_ptr.
	VarFound
)

// ErrorStyle is how the last error is read.
type ErrorStyle uint8

const (
	// ErrorFields: separate exports for number, location, action and line.
	ErrorFields ErrorStyle = iota
	// ErrorRecord: get(out_ptr) -> i32 present, filling a 20-byte record
	// (code, action, line, loc_ptr, loc_len). Absent data yields no error.
	ErrorRecord
)

// Exports names the guest entry points of a variant. Empty names are not
// required.
type Exports struct {
	Init               string
	Terminate          string
	LoadGameWorld      string
	OpenSavedGame      string
	SaveGame           string
	RestartGame        string
	SetSelectedAction  string
	ExecSelectedAction string
	SetSelectedObject  string
	SetInputText       string
	ExecUserInput      string
	ExecString         string
	ExecCounter        string
	MainDesc           string
	VarsDesc           string
	ActionsCount       string
	ActionText         string
	ActionImage        string
	ObjectsCount       string
	ObjectText         string
	ObjectImage        string
	NumVar             string
	ErrorNum           string
	ErrorLocation      string
	ErrorAction        string
	ErrorLine          string
	ErrorRecord        string
	ErrorDesc          string
}

// Variant describes one engine build: its host import module, entry point
// names and calling quirks.
type Variant struct {
	Exports      Exports
	Name         string
	ImportModule string
	Selector     state.Selector
	Handoff      Handoff
	Refresh      RefreshStyle
	Menu         MenuStyle
	Vars         VarStyle
	Errors       ErrorStyle
}

const (
	exportMemory = "memory"
	exportAlloc  = "alloc"
	exportFree   = "free"
)

// required lists every export the guest must provide.
func (v Variant) required() []string {
	x := v.Exports
	names := []string{
		exportMemory, exportAlloc, exportFree,
		x.LoadGameWorld, x.OpenSavedGame, x.SaveGame, x.RestartGame,
		x.SetSelectedAction, x.ExecSelectedAction, x.SetSelectedObject,
		x.SetInputText, x.ExecUserInput, x.ExecString, x.ExecCounter,
		x.MainDesc, x.VarsDesc,
		x.ActionsCount, x.ActionText, x.ActionImage,
		x.ObjectsCount, x.ObjectText, x.ObjectImage,
		x.NumVar, x.ErrorDesc,
	}
	switch v.Errors {
	case ErrorRecord:
		names = append(names, x.ErrorRecord)
	default:
		names = append(names, x.ErrorNum, x.ErrorLocation, x.ErrorAction, x.ErrorLine)
	}
	out := names[:0]
	for _, n := range names {
		if n != "" {
			out = append(out, n)
		}
	}
	return out
}

// Byte is the snake_case build with byte-array hand-off, gated refresh and a
// numeric read without found flag.
var Byte = Variant{
	Name:         "byte",
	Selector:     state.SelectorByte,
	ImportModule: "qsp_byte",
	Handoff:      HandoffBytes,
	Refresh:      RefreshGated,
	Menu:         MenuArray,
	Vars:         VarPlain,
	Errors:       ErrorFields,
	Exports: Exports{
		Init:               "qsp_init",
		Terminate:          "qsp_terminate",
		LoadGameWorld:      "qsp_load_game_world_from_data",
		OpenSavedGame:      "qsp_open_saved_game_from_data",
		SaveGame:           "qsp_save_game_as_data",
		RestartGame:        "qsp_restart_game",
		SetSelectedAction:  "qsp_set_sel_action_index",
		ExecSelectedAction: "qsp_execute_sel_action_code",
		SetSelectedObject:  "qsp_set_sel_object_index",
		SetInputText:       "qsp_set_input_str_text",
		ExecUserInput:      "qsp_exec_user_input",
		ExecString:         "qsp_exec_string",
		ExecCounter:        "qsp_exec_counter",
		MainDesc:           "qsp_get_main_desc",
		VarsDesc:           "qsp_get_vars_desc",
		ActionsCount:       "qsp_get_actions_count",
		ActionText:         "qsp_get_action_name",
		ActionImage:        "qsp_get_action_image",
		ObjectsCount:       "qsp_get_objects_count",
		ObjectText:         "qsp_get_object_name",
		ObjectImage:        "qsp_get_object_image",
		NumVar:             "qsp_get_num_var_value",
		ErrorNum:           "qsp_get_last_error_num",
		ErrorLocation:      "qsp_get_last_error_loc",
		ErrorAction:        "qsp_get_last_error_act",
		ErrorLine:          "qsp_get_last_error_line",
		ErrorDesc:          "qsp_get_error_desc",
	},
}

// Sonnix is the CamelCase build; world loading also takes the file name and
// variable reads report whether the name exists.
var Sonnix = Variant{
	Name:         "sonnix",
	Selector:     state.SelectorSonnix,
	ImportModule: "qsp_sonnix",
	Handoff:      HandoffNamedBytes,
	Refresh:      RefreshPlain,
	Menu:         MenuArray,
	Vars:         VarFound,
	Errors:       ErrorFields,
	Exports: Exports{
		Init:               "QSPInit",
		Terminate:          "QSPDeInit",
		LoadGameWorld:      "QSPLoadGameWorldFromData",
		OpenSavedGame:      "QSPOpenSavedGameFromData",
		SaveGame:           "QSPSaveGameAsData",
		RestartGame:        "QSPRestartGame",
		SetSelectedAction:  "QSPSetSelActionIndex",
		ExecSelectedAction: "QSPExecuteSelActionCode",
		SetSelectedObject:  "QSPSetSelObjectIndex",
		SetInputText:       "QSPSetInputStrText",
		ExecUserInput:      "QSPExecUserInput",
		ExecString:         "QSPExecString",
		ExecCounter:        "QSPExecCounter",
		MainDesc:           "QSPGetMainDesc",
		VarsDesc:           "QSPGetVarsDesc",
		ActionsCount:       "QSPGetActionsCount",
		ActionText:         "QSPGetActionName",
		ActionImage:        "QSPGetActionImage",
		ObjectsCount:       "QSPGetObjectsCount",
		ObjectText:         "QSPGetObjectName",
		ObjectImage:        "QSPGetObjectImage",
		NumVar:             "QSPGetVarValues",
		ErrorNum:           "QSPGetLastErrorNum",
		ErrorLocation:      "QSPGetLastErrorLoc",
		ErrorAction:        "QSPGetLastErrorActIndex",
		ErrorLine:          "QSPGetLastErrorLine",
		ErrorDesc:          "QSPGetErrorDesc",
	},
}

// Seedharta passes game and save data through descriptors, builds menus one
// item at a time and may have no error record to report.
var Seedharta = Variant{
	Name:         "seedharta",
	Selector:     state.SelectorSeedharta,
	ImportModule: "qsdh",
	Handoff:      HandoffDescriptor,
	Refresh:      RefreshPlain,
	Menu:         MenuIncremental,
	Vars:         VarFound,
	Errors:       ErrorRecord,
	Exports: Exports{
		Init:               "sdh_init",
		Terminate:          "sdh_terminate",
		LoadGameWorld:      "sdh_load_game_world_from_fd",
		OpenSavedGame:      "sdh_open_saved_game_from_fd",
		SaveGame:           "sdh_save_game_by_fd",
		RestartGame:        "sdh_restart_game",
		SetSelectedAction:  "sdh_set_sel_action_index",
		ExecSelectedAction: "sdh_exec_sel_action",
		SetSelectedObject:  "sdh_set_sel_object_index",
		SetInputText:       "sdh_set_input_text",
		ExecUserInput:      "sdh_exec_user_input",
		ExecString:         "sdh_exec_string",
		ExecCounter:        "sdh_exec_counter",
		MainDesc:           "sdh_main_desc",
		VarsDesc:           "sdh_vars_desc",
		ActionsCount:       "sdh_actions_count",
		ActionText:         "sdh_action_text",
		ActionImage:        "sdh_action_image",
		ObjectsCount:       "sdh_objects_count",
		ObjectText:         "sdh_object_text",
		ObjectImage:        "sdh_object_image",
		NumVar:             "sdh_get_var_values",
		ErrorRecord:        "sdh_get_last_error_data",
		ErrorDesc:          "sdh_get_error_desc",
	},
}

// Variants maps every selector to its variant.
var Variants = map[state.Selector]Variant{
	state.SelectorByte:      Byte,
	state.SelectorSonnix:    Sonnix,
	state.SelectorSeedharta: Seedharta,
}
