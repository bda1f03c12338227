package script

// prelude is evaluated before the extension source. It defines the
// extension-facing API surface on top of the single __host_invoke
// binding; every call funnels into one Go function so the host has a
// single choke point for validation and capability gating.
const prelude = `
"use strict";

var Clipboard = {
	readText: function () {
		var r = JSON.parse(__host_invoke("clipboard.read", "{}"));
		return r.text;
	},
	writeText: function (text) {
		__host_invoke("clipboard.write", JSON.stringify({ text: String(text) }));
	}
};

var LocalStorage = {
	getItem: function (key) {
		var r = JSON.parse(__host_invoke("storage.get", JSON.stringify({ key: String(key) })));
		return r.found ? r.value : null;
	},
	setItem: function (key, value) {
		__host_invoke("storage.set", JSON.stringify({ key: String(key), value: value }));
	},
	removeItem: function (key) {
		__host_invoke("storage.set", JSON.stringify({ key: String(key), value: null }));
	}
};

function showToast(title, body) {
	var payload = (title !== null && typeof title === "object")
		? title
		: { title: String(title), body: body === undefined ? "" : String(body) };
	__host_invoke("notification.show", JSON.stringify(payload));
}

function showHUD(message) {
	__host_invoke("notification.show", JSON.stringify({ message: String(message) }));
}

function httpGet(url) {
	return JSON.parse(__host_invoke("http.fetch", JSON.stringify({ url: String(url), method: "GET" })));
}

// Structured items persist as one JSON array in plugin storage.
var Items = {
	_load: function () {
		var r = JSON.parse(__host_invoke("storage.get", JSON.stringify({ key: "__items" })));
		return r.found && r.value ? r.value : [];
	},
	_save: function (items) {
		__host_invoke("storage.set", JSON.stringify({ key: "__items", value: items }));
	},
	create: function (item) {
		var all = this._load();
		all.push(item);
		this._save(all);
		return item;
	},
	search: function (query) {
		var q = String(query).toLowerCase();
		return this._load().filter(function (it) {
			return String(it.title || "").toLowerCase().indexOf(q) !== -1;
		});
	},
	update: function (id, patch) {
		var all = this._load();
		for (var i = 0; i < all.length; i++) {
			if (all[i].id === id) {
				for (var k in patch) {
					if (Object.prototype.hasOwnProperty.call(patch, k)) {
						all[i][k] = patch[k];
					}
				}
				this._save(all);
				return all[i];
			}
		}
		return null;
	},
	"delete": function (id) {
		var all = this._load();
		var kept = all.filter(function (it) { return it.id !== id; });
		this._save(kept);
		return kept.length !== all.length;
	}
};
`
