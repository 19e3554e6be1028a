//go:build !nogl
// +build !nogl

package opengl

// bindata maps shader paths to GLSL sources.
var bindata = map[string]string{
	"disc.vert": `#version 330 core

layout(location = 0) in vec2 pos;
layout(location = 1) in float radius;
layout(location = 2) in vec3 color;

uniform mat4 proj;
uniform float scale; // framebuffer pixels per arena unit

out vec3 fcolor;

void main() {
	gl_Position = proj * vec4(pos, 0.0, 1.0);
	gl_PointSize = 2.0 * radius * scale;
	fcolor = color;
}
`,

	"disc.frag": `#version 330 core

in vec3 fcolor;

out vec4 outColor;

void main() {
	vec2 p = 2.0 * gl_PointCoord - 1.0;
	float r2 = dot(p, p);
	if (r2 > 1.0) {
		discard;
	}
	// darker rim, soft edge
	float shade = 1.0 - 0.35 * r2;
	float alpha = 1.0 - smoothstep(0.9, 1.0, r2);
	outColor = vec4(fcolor * shade, alpha);
}
`,

	"flat.vert": `#version 330 core

layout(location = 0) in vec2 pos;
layout(location = 1) in vec4 color;

uniform mat4 proj;

out vec4 fcolor;

void main() {
	gl_Position = proj * vec4(pos, 0.0, 1.0);
	fcolor = color;
}
`,

	"flat.frag": `#version 330 core

in vec4 fcolor;

out vec4 outColor;

void main() {
	outColor = fcolor;
}
`,
}
